// Package wire implements the session endpoint's frame-level transport:
// classifying and encoding the JSON meta-data / binary data-frame
// alternation described in spec.md §4.4/§6, on top of a gorilla/websocket
// connection (grounded on the read/write loop in
// internal/net/ws/handler.go of the teacher repo, generalized from its
// JSON-only client messages to this protocol's mixed text/binary frames).
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gorilla/websocket"
)

// Socket wraps one session connection, exposing the meta-data and
// data-frame operations the session driver needs without leaking
// gorilla/websocket message-type plumbing into internal/session.
type Socket struct {
	conn *websocket.Conn
}

// NewSocket wraps an already-upgraded connection.
func NewSocket(conn *websocket.Conn) *Socket {
	return &Socket{conn: conn}
}

// Close unbinds the underlying connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// ReceiveMetaData blocks for one message. A keep-alive probe — empty,
// not starting with '{', or exactly "{}" — is reported via ok=false
// rather than as an error, matching ReceiveRequestMetaData's first
// classification step (spec.md §4.4).
func (s *Socket) ReceiveMetaData() (payload []byte, ok bool, err error) {
	_, payload, err = s.conn.ReadMessage()
	if err != nil {
		return nil, false, fmt.Errorf("receive meta-data: %w", err)
	}
	if IsKeepAliveProbe(payload) {
		return nil, false, nil
	}
	return payload, true, nil
}

// SendMetaData writes a JSON text frame.
func (s *Socket) SendMetaData(payload []byte) error {
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send meta-data: %w", err)
	}
	return nil
}

// FramePayload is one raw message received where a data frame was
// expected, tagged with the classification ReceiveSendData needs to pick
// its next state (spec.md §4.4).
type FramePayload struct {
	Kind    FrameKind
	JSON    []byte    // set when Kind == FrameKindRebind
	Values  []float64 // set when Kind == FrameKindData or FrameKindBroadcastOnly
}

// FrameKind classifies a message received in ReceiveSendData.
type FrameKind int

const (
	// FrameKindClose is the client-initiated clean-close probe.
	FrameKindClose FrameKind = iota
	// FrameKindRebind is a non-empty JSON object requesting meta-data
	// renegotiation.
	FrameKindRebind
	// FrameKindBroadcastOnly is a binary frame whose leading value is
	// NaN: the client wants this tick's broadcast without producing
	// fresh values.
	FrameKindBroadcastOnly
	// FrameKindData is an ordinary binary data frame.
	FrameKindData
)

// ReceiveDataFrame blocks for one message where a data frame is
// expected and classifies it per spec.md §4.4's ReceiveSendData rules.
// size is the number of f64 values send_vec expects; it is only used to
// decode FrameKindData/FrameKindBroadcastOnly payloads.
func (s *Socket) ReceiveDataFrame(size int) (FramePayload, error) {
	msgType, payload, err := s.conn.ReadMessage()
	if err != nil {
		return FramePayload{}, fmt.Errorf("receive data frame: %w", err)
	}

	if msgType == websocket.TextMessage {
		if IsCloseProbe(payload) {
			return FramePayload{Kind: FrameKindClose}, nil
		}
		if json.Valid(payload) {
			return FramePayload{Kind: FrameKindRebind, JSON: payload}, nil
		}
		return FramePayload{}, fmt.Errorf("receive data frame: text message is neither a close probe nor valid JSON")
	}

	values := DecodeFrame(payload, size)
	if len(values) == 0 || math.IsNaN(values[0]) {
		return FramePayload{Kind: FrameKindBroadcastOnly, Values: values}, nil
	}
	return FramePayload{Kind: FrameKindData, Values: values}, nil
}

// SendDataFrame writes values as a little-endian IEEE 754 binary frame.
func (s *Socket) SendDataFrame(values []float64) error {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(values)); err != nil {
		return fmt.Errorf("send data frame: %w", err)
	}
	return nil
}

// EncodeFrame packs values consecutively as little-endian f64s.
func EncodeFrame(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// DecodeFrame unpacks up to size little-endian f64s from payload. A
// payload shorter than size*8 bytes yields fewer values; callers treat a
// missing leading value the same as an explicit NaN (spec.md §4.4 does
// not require frames to round-trip through a fixed-size buffer before
// the leading-NaN check).
func DecodeFrame(payload []byte, size int) []float64 {
	n := len(payload) / 8
	if n > size {
		n = size
	}
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	return values
}

// IsKeepAliveProbe reports whether payload is ReceiveRequestMetaData's
// "treat as keep-alive" case: empty, not starting with '{', or exactly
// "{}".
func IsKeepAliveProbe(payload []byte) bool {
	if len(payload) == 0 {
		return true
	}
	if payload[0] != '{' {
		return true
	}
	if string(payload) == "{}" {
		return true
	}
	return false
}

// IsCloseProbe reports whether payload is ReceiveSendData's
// client-initiated close probe. Per spec.md §9's redesign flags, this
// preserves the original's exact byte test — message[0]=='{' and
// message[1]!='}' — rather than the more obvious "payload == \"{}\"" one
// might expect; do not "fix" it, downstream wire compatibility depends
// on the literal test.
func IsCloseProbe(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == '{' && payload[1] != '}'
}
