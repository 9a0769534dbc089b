// Package acceptor implements the HTTP+WebSocket front door described in
// SPEC_FULL.md §4.0: a rendezvous endpoint that mints or confirms a session
// address, and a session endpoint that upgrades the client's second
// connection and hands it to a freshly constructed session.Driver.
//
// Grounded on the teacher's internal/net/http_handlers.go (NewHTTPHandler:
// one http.ServeMux, health/diagnostics routes, a websocket upgrade route)
// and internal/net/ws/handler.go (upgrader config, one goroutine per
// connection reading until a transport error).
package acceptor

import (
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ulikoehler/Multiverse/internal/mailbox"
	"github.com/ulikoehler/Multiverse/internal/registry"
	"github.com/ulikoehler/Multiverse/internal/session"
	"github.com/ulikoehler/Multiverse/internal/shutdown"
	"github.com/ulikoehler/Multiverse/internal/telemetry"
	"github.com/ulikoehler/Multiverse/internal/wire"
	"github.com/ulikoehler/Multiverse/logging"
)

// Acceptor owns the rendezvous/session HTTP routes and the table of
// currently-connected session sockets, so shutdown can close every live
// socket and unblock a session's blocking reads.
type Acceptor struct {
	reg         *registry.Registry
	mb          *mailbox.Mailbox
	coordinator *shutdown.Coordinator
	publisher   logging.Publisher
	logger      telemetry.Logger
	metrics     *logging.Metrics
	upgrader    websocket.Upgrader

	mu       sync.Mutex
	pending  map[string]bool
	sessions map[string]*wire.Socket

	nextAddr atomic.Uint64
}

// New constructs an Acceptor. metricsCollector may be nil.
func New(reg *registry.Registry, mb *mailbox.Mailbox, coordinator *shutdown.Coordinator, publisher logging.Publisher, logger telemetry.Logger, metricsCollector *logging.Metrics) *Acceptor {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	return &Acceptor{
		reg:         reg,
		mb:          mb,
		coordinator: coordinator,
		publisher:   publisher,
		logger:      logger,
		metrics:     metricsCollector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *nethttp.Request) bool { return true },
		},
		pending:  make(map[string]bool),
		sessions: make(map[string]*wire.Socket),
	}
}

// Handler builds the mux exposed by cmd/hub: rendezvous, session, and the
// supplementary observability routes of SPEC_FULL.md §9.
func (a *Acceptor) Handler() nethttp.Handler {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/diagnostics", a.handleDiagnostics)
	mux.HandleFunc("/v1/rendezvous", a.handleRendezvous)
	mux.HandleFunc("/v1/session/", a.handleSession)
	return mux
}

func (a *Acceptor) handleHealthz(w nethttp.ResponseWriter, r *nethttp.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (a *Acceptor) handleDiagnostics(w nethttp.ResponseWriter, r *nethttp.Request) {
	a.mu.Lock()
	liveSessions := len(a.sessions)
	pendingCount := len(a.pending)
	a.mu.Unlock()

	var counters map[string]uint64
	if a.metrics != nil {
		counters = a.metrics.Snapshot()
	}

	payload := struct {
		Status        string            `json:"status"`
		ServerTime    int64             `json:"serverTime"`
		LiveSessions  int               `json:"liveSessions"`
		PendingRendez int               `json:"pendingRendezvous"`
		Telemetry     map[string]uint64 `json:"telemetry"`
	}{
		Status:        "ok",
		ServerTime:    time.Now().UnixMilli(),
		LiveSessions:  liveSessions,
		PendingRendez: pendingCount,
		Telemetry:     counters,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleRendezvous implements SPEC_FULL.md §4.0: the client sends one
// TextMessage naming a desired session address (empty to let the acceptor
// mint one), the acceptor replies with the confirmed address as a
// TextMessage, then closes the connection.
func (a *Acceptor) handleRendezvous(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Printf("rendezvous upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	if err != nil {
		a.logger.Printf("rendezvous read failed: %v", err)
		return
	}

	addr := strings.TrimSpace(string(payload))
	if addr == "" {
		addr = fmt.Sprintf("sess-%d", a.nextAddr.Add(1))
	}

	a.mu.Lock()
	a.pending[addr] = true
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.TelemetryAdd("rendezvous.completed", 1)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(addr)); err != nil {
		a.logger.Printf("rendezvous reply failed for %s: %v", addr, err)
	}
}

// handleSession implements the GET /v1/session/{address} route: it only
// accepts an address reserved by a prior rendezvous, wraps the upgraded
// connection in a wire.Socket, and runs a session.Driver over it until
// disconnect or shutdown.
func (a *Acceptor) handleSession(w nethttp.ResponseWriter, r *nethttp.Request) {
	addr := strings.TrimPrefix(r.URL.Path, "/v1/session/")
	if addr == "" {
		nethttp.Error(w, "missing session address", nethttp.StatusBadRequest)
		return
	}

	a.mu.Lock()
	reserved := a.pending[addr]
	if reserved {
		delete(a.pending, addr)
	}
	a.mu.Unlock()
	if !reserved {
		nethttp.Error(w, "unknown or expired session address", nethttp.StatusNotFound)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Printf("session upgrade failed for %s: %v", addr, err)
		return
	}

	sock := wire.NewSocket(conn)
	a.mu.Lock()
	a.sessions[addr] = sock
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.TelemetryAdd("sessions.opened", 1)
	}

	driver := session.New(addr, sock, a.reg, a.mb, a.coordinator, a.logger, a.publisher)
	driver.Run()

	a.mu.Lock()
	delete(a.sessions, addr)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.TelemetryAdd("sessions.closed", 1)
	}
}

// CloseAll closes every live session socket, unblocking any session
// currently parked in a blocking ReceiveMetaData/ReceiveDataFrame call so
// its driver can observe the shutdown coordinator and exit.
func (a *Acceptor) CloseAll() {
	a.mu.Lock()
	sockets := make([]*wire.Socket, 0, len(a.sessions))
	for _, s := range a.sessions {
		sockets = append(sockets, s)
	}
	a.mu.Unlock()

	for _, s := range sockets {
		_ = s.Close()
	}
}
