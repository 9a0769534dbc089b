// Package session implements the per-connection session driver of
// spec.md §4.4: the seven-state machine that receives a meta-data
// request, binds the session's produced/consumed attributes into the
// world registry, and then alternates binary data frames with the
// client until it disconnects, rebinds, or the server shuts down.
//
// Grounded on the teacher's internal/net/ws read/write loop (ReadMessage
// in a for-loop, dispatch by payload shape, write back, disconnect on
// transport error) generalized from its one-shot JSON dispatch to this
// protocol's explicit state machine over mixed text/binary frames.
package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ulikoehler/Multiverse/internal/convert"
	"github.com/ulikoehler/Multiverse/internal/mailbox"
	"github.com/ulikoehler/Multiverse/internal/protocol"
	"github.com/ulikoehler/Multiverse/internal/registry"
	"github.com/ulikoehler/Multiverse/internal/shutdown"
	"github.com/ulikoehler/Multiverse/internal/telemetry"
	"github.com/ulikoehler/Multiverse/internal/wire"
	"github.com/ulikoehler/Multiverse/logging"
	sessionlog "github.com/ulikoehler/Multiverse/logging/session"
)

type state int

const (
	stateReceiveRequestMetaData state = iota
	stateBindObjects
	stateSendResponseMetaData
	stateReceiveSendData
	stateBindSendData
	stateBindReceiveData
	stateSendReceiveData
)

// pollInterval paces every spin-wait (wait_for_objects,
// wait_for_receive_data, mailbox handshake spins) between shutdown checks.
const pollInterval = 20 * time.Millisecond

// waitLogInterval is the "at most once per second" throttle spec.md §5
// requires of every polling loop's log output.
const waitLogInterval = time.Second

// Driver runs one connected client's session state machine. One Driver
// exists per connection; it is not safe for concurrent use from more than
// one goroutine (spec.md §5: each session thread drives its state machine
// synchronously over its own socket).
type Driver struct {
	addr        string
	sock        *wire.Socket
	reg         *registry.Registry
	mb          *mailbox.Mailbox
	coordinator *shutdown.Coordinator
	logger      telemetry.Logger
	publisher   logging.Publisher

	state state

	simulationName string
	worldName      string
	units          convert.Units
	scale          map[convert.AttributeKind][]float64

	mailboxSlot  *mailbox.Slot
	isInstigator bool

	pendingRequest protocol.RequestDocument
	response       protocol.ResponseDocument

	sendVec       []bindEntry
	recvVec       []bindEntry
	effortTargets []effortTarget
	sendBuf       []float64
	recvBuf       []float64

	firstEntrySinceRebind bool
	needsCleanup          bool
	exitRequested         bool
	exitReason            string

	waitLog throttle
}

// New constructs a session driver for a freshly accepted connection. addr
// is the session endpoint address the client asked to speak on
// (spec.md §4.5); it doubles as the producer key for effort ledger rows.
func New(addr string, sock *wire.Socket, reg *registry.Registry, mb *mailbox.Mailbox, coordinator *shutdown.Coordinator, logger telemetry.Logger, publisher logging.Publisher) *Driver {
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Driver{
		addr:        addr,
		sock:        sock,
		reg:         reg,
		mb:          mb,
		coordinator: coordinator,
		logger:      logger,
		publisher:   publisher,
		state:       stateReceiveRequestMetaData,
	}
}

// Run drives the session to completion: disconnect, clean close followed
// by disconnect, or process shutdown. It blocks until the session ends.
func (d *Driver) Run() {
	for !d.exitRequested {
		if d.coordinator.ShouldShutDown() {
			d.exitRequested = true
			d.exitReason = "shutdown"
			break
		}
		switch d.state {
		case stateReceiveRequestMetaData:
			d.runReceiveRequestMetaData()
		case stateBindObjects:
			d.runBindObjects()
		case stateSendResponseMetaData:
			d.runSendResponseMetaData()
		case stateReceiveSendData:
			d.runReceiveSendData()
		case stateBindSendData:
			d.runBindSendData()
		case stateBindReceiveData:
			d.runBindReceiveData()
		case stateSendReceiveData:
			d.runSendReceiveData()
		}
	}
	d.finish()
}

// finish implements spec.md §4.4's exit behavior: emit one final
// receive-data frame if a request was left in flight, then unbind.
func (d *Driver) finish() {
	if d.exitReason == "" {
		d.exitReason = "disconnect"
	}
	if d.needsCleanup {
		buf := d.recvBuf
		if len(buf) == 0 {
			buf = []float64{-1}
		} else {
			buf[0] = -1
		}
		if err := d.sock.SendDataFrame(buf); err != nil {
			d.logger.Printf("session %s: final frame on exit: %v", d.addr, err)
		}
	}
	if err := d.sock.Close(); err != nil {
		d.logger.Printf("session %s: close on exit: %v", d.addr, err)
	}
	d.reg.Lock()
	d.reg.DropSocket(d.worldName, d.addr)
	d.reg.Unlock()
	d.coordinator.Forget(d.addr)
	sessionlog.Closed(context.Background(), d.publisher, d.entityRef(), sessionlog.ClosedPayload{Reason: d.exitReason})
}

func (d *Driver) entityRef() logging.EntityRef {
	return logging.EntityRef{ID: d.addr, Kind: logging.EntityKindSession}
}

func (d *Driver) exitOnTransportError(err error) {
	d.logger.Printf("session %s: transport error: %v", d.addr, err)
	d.exitReason = "transport_error"
	d.exitRequested = true
}

// --- ReceiveRequestMetaData ---------------------------------------------

func (d *Driver) runReceiveRequestMetaData() {
	payload, ok, err := d.sock.ReceiveMetaData()
	if err != nil {
		d.exitOnTransportError(err)
		return
	}
	if !ok {
		// Keep-alive / probe: broadcast with whatever vectors are already
		// bound (spec.md §4.4 ReceiveRequestMetaData).
		d.state = stateBindReceiveData
		return
	}

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		d.logger.Printf("session %s: malformed meta-data: %v", d.addr, err)
		if d.simulationName == "" {
			d.exitReason = "invalid_argument"
			d.exitRequested = true
		}
		return
	}
	if req.Name == "" {
		if d.simulationName == "" {
			d.logger.Printf("session %s: request has no name and no prior binding", d.addr)
			d.exitReason = "invalid_argument"
			d.exitRequested = true
			return
		}
		req.Name = d.simulationName
	}

	d.needsCleanup = false
	d.coordinator.SetNeedsCleanup(d.addr, false)
	d.pendingRequest = req
	d.state = stateBindObjects
}

// --- BindObjects ---------------------------------------------------------

func (d *Driver) runBindObjects() {
	req := d.pendingRequest

	resp, adjusted := d.initResponseMetaData(req)
	d.response = resp
	d.worldName = resp.World

	d.units = adjusted.Units.Normalized()
	d.scale = convert.BuildScale(d.units)

	d.reg.Lock()
	d.response.Time = d.reg.WorldTime(d.worldName) / d.scale[convert.Time][0]
	d.sendVec = bindSendObjects(d.reg, d.worldName, d.addr, adjusted.Send, d.scale, &d.response)
	d.reg.Unlock()

	receiveSpecs := adjusted.Receive
	if d.isInstigator {
		receiveSpecs = nil
	} else {
		d.reg.Lock()
		receiveSpecs = protocol.ExpandReceiveSentinels(receiveSpecs, d.worldName, registryLister{reg: d.reg})
		d.reg.Unlock()
	}

	d.waitForObjects(receiveSpecs)
	if d.exitRequested {
		return
	}

	d.reg.Lock()
	d.recvVec, d.effortTargets = bindReceiveObjects(d.reg, d.worldName, receiveSpecs, d.scale, &d.response)
	d.reg.Unlock()
	d.firstEntrySinceRebind = true

	sessionlog.Bound(context.Background(), d.publisher, d.entityRef(), sessionlog.BoundPayload{
		World:     d.worldName,
		SendCount: len(d.sendVec),
		RecvCount: len(d.recvVec),
	})

	// Fall through to SendResponseMetaData: the original control flow has
	// no break here, and spec.md §9 treats that fall-through as intended.
	d.state = stateSendResponseMetaData
}

// initResponseMetaData implements spec.md §4.4 BindObjects step 1
// (init_response_meta_data): resolve whether req.Name is already owned by
// another session's mailbox slot, and either merge into it (instigator
// path) or adopt it as this session's own simulation name (owner path).
func (d *Driver) initResponseMetaData(req protocol.RequestDocument) (protocol.ResponseDocument, protocol.RequestDocument) {
	slot, existed := d.mb.Lookup(req.Name)
	if !existed {
		slot = d.mb.GetOrCreate(req.Name)
	}
	owned := existed && d.simulationName == req.Name && d.mailboxSlot == slot

	if existed && !owned {
		var base protocol.RequestDocument
		if doc, ok := slot.Doc().(protocol.RequestDocument); ok {
			base = doc
		}
		merged := unionRequestDocuments(base, req)
		slot.SetDoc(merged)
		slot.SetState(mailbox.WaitForOtherSimulation)

		d.isInstigator = true
		d.mailboxSlot = slot
		req.Receive = nil

		sessionlog.MailboxMerged(context.Background(), d.publisher, d.entityRef(), sessionlog.MailboxMergedPayload{SimulationName: req.Name})
		return protocol.ResponseDocument{Name: req.Name, World: merged.World, Units: req.Units}, req
	}

	d.isInstigator = false
	d.mailboxSlot = slot
	d.simulationName = req.Name
	slot.SetDoc(req)
	if !existed {
		slot.SetState(mailbox.None)
	}
	return protocol.ResponseDocument{Name: req.Name, World: req.World, Units: req.Units}, req
}

// --- SendResponseMetaData -------------------------------------------------

func (d *Driver) runSendResponseMetaData() {
	payload, err := d.response.Encode()
	if err != nil {
		d.logger.Printf("session %s: encode response: %v", d.addr, err)
		d.exitReason = "encode_error"
		d.exitRequested = true
		return
	}
	if err := d.sock.SendMetaData(payload); err != nil {
		d.exitOnTransportError(err)
		return
	}

	d.needsCleanup = false
	d.coordinator.SetNeedsCleanup(d.addr, false)

	if len(d.sendVec) <= 1 && len(d.recvVec) <= 1 {
		d.sendVec, d.recvVec = nil, nil
		d.state = stateReceiveRequestMetaData
		return
	}

	d.sendBuf = make([]float64, len(d.sendVec))
	d.recvBuf = make([]float64, len(d.recvVec))
	d.needsCleanup = true
	d.coordinator.SetNeedsCleanup(d.addr, true)
	d.state = stateReceiveSendData
}

// --- ReceiveSendData -------------------------------------------------------

func (d *Driver) runReceiveSendData() {
	frame, err := d.sock.ReceiveDataFrame(len(d.sendVec))
	if err != nil {
		d.exitOnTransportError(err)
		return
	}

	switch frame.Kind {
	case wire.FrameKindClose:
		d.sendVec, d.recvVec = nil, nil
		d.state = stateSendResponseMetaData
	case wire.FrameKindRebind:
		req, err := protocol.DecodeRequest(frame.JSON)
		if err != nil {
			d.logger.Printf("session %s: malformed rebind meta-data: %v", d.addr, err)
			return
		}
		if req.Name == "" {
			req.Name = d.simulationName
		}
		d.pendingRequest = req
		d.sendVec, d.recvVec = nil, nil
		d.state = stateBindObjects
	case wire.FrameKindBroadcastOnly:
		d.state = stateBindReceiveData
	case wire.FrameKindData:
		d.sendBuf = frame.Values
		d.state = stateBindSendData
	}
}

// --- BindSendData ----------------------------------------------------------

func (d *Driver) runBindSendData() {
	d.reg.Lock()
	for i, entry := range d.sendVec {
		var v float64
		if i < len(d.sendBuf) {
			v = d.sendBuf[i]
		}
		if entry.isTime {
			if !math.IsNaN(v) && v >= 0 {
				d.reg.SetWorldTime(d.worldName, v*entry.scale)
			}
			continue
		}
		scaled := v * entry.scale
		switch {
		case entry.effortRow != nil:
			entry.effortRow[entry.axis] = scaled
		case entry.slot != nil:
			entry.slot.Values[entry.axis] = scaled
			entry.slot.Written = true
		}
	}
	d.reg.Unlock()

	if d.isInstigator && d.mailboxSlot != nil {
		for {
			st := d.mailboxSlot.State()
			if st == mailbox.WaitForSendingData || st == mailbox.None {
				break
			}
			if d.coordinator.ShouldShutDown() {
				d.exitReason = "shutdown"
				d.exitRequested = true
				return
			}
			time.Sleep(pollInterval)
		}
		d.mailboxSlot.SetState(mailbox.Done)
	}

	d.state = stateBindReceiveData
}

// --- BindReceiveData ---------------------------------------------------------

func (d *Driver) runBindReceiveData() {
	d.waitForReceiveData()
	if d.exitRequested {
		return
	}

	d.reg.Lock()
	for _, target := range d.effortTargets {
		d.reg.AggregateEffort(d.worldName, target.object, target.kind)
	}
	for i, entry := range d.recvVec {
		if entry.isTime {
			d.recvBuf[i] = d.reg.WorldTime(d.worldName) * entry.scale
			continue
		}
		if entry.slot != nil {
			d.recvBuf[i] = entry.slot.Values[entry.axis] * entry.scale
		}
	}
	d.reg.Unlock()

	d.state = stateSendReceiveData
}

// --- SendReceiveData ---------------------------------------------------------

func (d *Driver) runSendReceiveData() {
	if d.coordinator.ShouldShutDown() {
		if len(d.recvBuf) > 0 {
			d.recvBuf[0] = -1
		}
	} else if !d.isInstigator && d.mailboxSlot != nil && d.mailboxSlot.State() == mailbox.WaitForOtherSimulation {
		if len(d.recvBuf) > 0 {
			d.recvBuf[0] = -2
		}
	}

	if err := d.sock.SendDataFrame(d.recvBuf); err != nil {
		d.exitOnTransportError(err)
		return
	}

	if !d.isInstigator && d.mailboxSlot != nil && d.mailboxSlot.State() == mailbox.WaitForOtherSimulation {
		d.mailboxSlot.SetState(mailbox.WaitForSendingData)
		for d.mailboxSlot.State() != mailbox.Done {
			if d.coordinator.ShouldShutDown() {
				d.exitReason = "shutdown"
				d.exitRequested = true
				return
			}
			time.Sleep(pollInterval)
		}

		// Drain one message from this socket to preserve strict
		// request/reply alternation before replying with the merged
		// meta-data document (spec.md §4.4 SendReceiveData handoff).
		if _, err := d.sock.ReceiveDataFrame(len(d.sendVec)); err != nil {
			d.exitOnTransportError(err)
			return
		}

		merged, _ := d.mailboxSlot.Doc().(protocol.RequestDocument)
		d.mb.Reset(d.simulationName)
		d.sendVec, d.recvVec = nil, nil
		d.pendingRequest = merged
		d.state = stateBindObjects
		return
	}

	d.state = stateReceiveSendData
}

// --- wait_for_objects / wait_for_receive_data -------------------------------

func (d *Driver) waitForObjects(specs []protocol.AttributeSpec) {
	for {
		pending := false
		for _, spec := range specs {
			for _, attrName := range spec.Attributes {
				kind := convert.AttributeKind(attrName)
				if !convert.Known(kind) || convert.IsEffort(kind) {
					continue
				}
				d.reg.Lock()
				exists := d.reg.Exists(d.worldName, spec.Object, kind)
				d.reg.Unlock()
				if exists {
					continue
				}
				pending = true
				if d.waitLog.Ready("objects:"+spec.Object+":"+attrName, waitLogInterval) {
					sessionlog.WaitingForProducer(context.Background(), d.publisher, d.entityRef(), sessionlog.WaitingPayload{Object: spec.Object, Attribute: attrName})
				}
			}
		}
		if !pending {
			return
		}
		if d.coordinator.ShouldShutDown() {
			d.exitReason = "shutdown"
			d.exitRequested = true
			return
		}
		time.Sleep(pollInterval)
	}
}

func (d *Driver) waitForReceiveData() {
	if !d.firstEntrySinceRebind {
		return
	}

	d.reg.Lock()
	for _, entry := range d.sendVec {
		if entry.isTime || entry.slot == nil {
			continue
		}
		entry.slot.Written = true
	}
	d.reg.Unlock()

	for {
		d.reg.Lock()
		pending := false
		for _, entry := range d.recvVec {
			if entry.isTime || entry.slot == nil {
				continue
			}
			if !entry.slot.Written {
				pending = true
				break
			}
		}
		d.reg.Unlock()
		if !pending {
			break
		}
		if d.waitLog.Ready("receive_data:"+d.worldName, waitLogInterval) {
			sessionlog.WaitingForData(context.Background(), d.publisher, d.entityRef(), sessionlog.WaitingPayload{Object: d.worldName})
		}
		if d.coordinator.ShouldShutDown() {
			d.exitReason = "shutdown"
			d.exitRequested = true
			return
		}
		time.Sleep(pollInterval)
	}
	d.firstEntrySinceRebind = false
}

// throttle caps repeated log lines to at most once per interval per key
// (spec.md §5's "throttle log output to at most one message per second
// per waiting condition").
type throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (t *throttle) Ready(key string, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		t.last = make(map[string]time.Time)
	}
	now := time.Now()
	if last, ok := t.last[key]; ok && now.Sub(last) < interval {
		return false
	}
	t.last[key] = now
	return true
}
