package session_test

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ulikoehler/Multiverse/internal/acceptor"
	"github.com/ulikoehler/Multiverse/internal/mailbox"
	"github.com/ulikoehler/Multiverse/internal/registry"
	"github.com/ulikoehler/Multiverse/internal/shutdown"
	"github.com/ulikoehler/Multiverse/internal/wire"
	"github.com/ulikoehler/Multiverse/logging"
)

// testHub spins up a real acceptor over httptest so these tests exercise
// the full rendezvous -> session handshake -> data-frame loop, matching
// spec.md §8's concrete scenarios end to end rather than mocking the wire.
type testHub struct {
	srv *httptest.Server
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	reg := registry.New()
	mb := mailbox.New()
	coordinator := shutdown.New()
	acc := acceptor.New(reg, mb, coordinator, logging.NopPublisher(), nil, nil)
	srv := httptest.NewServer(acc.Handler())
	t.Cleanup(srv.Close)
	return &testHub{srv: srv}
}

func (h *testHub) wsURL(path string) string {
	u, _ := url.Parse(h.srv.URL)
	u.Scheme = "ws"
	u.Path = path
	return u.String()
}

// connectSession performs the two-hop handshake: rendezvous for an
// address, then open the session endpoint at that address.
func (h *testHub) connectSession(t *testing.T, desiredAddr string) *websocket.Conn {
	t.Helper()
	rconn, resp, err := websocket.DefaultDialer.Dial(h.wsURL("/v1/rendezvous"), nil)
	if err != nil {
		t.Fatalf("rendezvous dial: %v", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	if err := rconn.WriteMessage(websocket.TextMessage, []byte(desiredAddr)); err != nil {
		t.Fatalf("rendezvous write: %v", err)
	}
	_, addrPayload, err := rconn.ReadMessage()
	if err != nil {
		t.Fatalf("rendezvous read: %v", err)
	}
	rconn.Close()

	sconn, sresp, err := websocket.DefaultDialer.Dial(h.wsURL("/v1/session/"+string(addrPayload)), nil)
	if err != nil {
		t.Fatalf("session dial: %v", err)
	}
	if sresp != nil {
		sresp.Body.Close()
	}
	return sconn
}

func TestSingleProducerConsumerSameUnits(t *testing.T) {
	hub := newTestHub(t)

	producer := hub.connectSession(t, "producer")
	defer producer.Close()

	reqJSON := `{"name":"producer-sim","world":"w","send":{"rover":["position"]}}`
	if err := producer.WriteMessage(websocket.TextMessage, []byte(reqJSON)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	_, respPayload, err := producer.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["world"] != "w" {
		t.Fatalf("expected world w, got %v", resp["world"])
	}

	if err := producer.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame([]float64{1.0, 1, 2, 3})); err != nil {
		t.Fatalf("write send frame: %v", err)
	}
	mt, recvPayload, err := producer.ReadMessage()
	if err != nil {
		t.Fatalf("read recv frame: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("expected binary recv frame, got type %d", mt)
	}
	values := wire.DecodeFrame(recvPayload, 1)
	if len(values) != 1 {
		t.Fatalf("expected 1-value recv frame (time only, no receive bound), got %d", len(values))
	}

	consumer := hub.connectSession(t, "consumer")
	defer consumer.Close()

	consumerReq := `{"name":"consumer-sim","world":"w","receive":{"rover":["position"]}}`
	if err := consumer.WriteMessage(websocket.TextMessage, []byte(consumerReq)); err != nil {
		t.Fatalf("write consumer request: %v", err)
	}
	if err := consumer.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, consumerResp, err := consumer.ReadMessage()
	if err != nil {
		t.Fatalf("read consumer response: %v", err)
	}
	var cresp map[string]any
	if err := json.Unmarshal(consumerResp, &cresp); err != nil {
		t.Fatalf("decode consumer response: %v", err)
	}
	receive, ok := cresp["receive"].(map[string]any)
	if !ok {
		t.Fatalf("expected receive object in consumer response, got %T", cresp["receive"])
	}
	rover, ok := receive["rover"].(map[string]any)
	if !ok {
		t.Fatalf("expected rover attributes in receive, got %v", receive)
	}
	position, ok := rover["position"].([]any)
	if !ok || len(position) != 3 {
		t.Fatalf("expected 3-element position echo, got %v", rover["position"])
	}
}

func TestCleanCloseUnbindsSession(t *testing.T) {
	hub := newTestHub(t)

	conn := hub.connectSession(t, "closer")
	req := `{"name":"sim2","world":"w2","send":{"rover":["position"]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read response: %v", err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame([]float64{1, 1, 2, 3})); err != nil {
		t.Fatalf("write send frame: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read recv frame: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{x`)); err != nil {
		t.Fatalf("write close probe: %v", err)
	}

	mt, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read close response: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("expected a meta-data echo after the close probe, got message type %d: %q", mt, payload)
	}
	conn.Close()
}
