package hyperliquid

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	appconfig "hyperflow/config"
	"hyperflow/models"
)

type wsServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan []byte
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{received: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{}

	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ws.mu.Lock()
		ws.conns = append(ws.conns, conn)
		ws.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ws.received <- msg
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsServer) send(t *testing.T, payload string) {
	t.Helper()
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if len(ws.conns) == 0 {
		t.Fatal("no connected client")
	}
	if err := ws.conns[0].WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

func (ws *wsServer) closeClient() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, conn := range ws.conns {
		conn.Close()
	}
}

func (ws *wsServer) nextFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-ws.received:
		var frame map[string]any
		if err := json.Unmarshal(msg, &frame); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

func testConfig(url string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Venue.WsURL = url
	cfg.Venue.EventBuffer = 16
	cfg.Venue.PingInterval = time.Hour
	cfg.Venue.RateLimit.RequestsPerSecond = 100
	cfg.Venue.RateLimit.BurstSize = 10
	return cfg
}

func recvEvent(t *testing.T, ses *Session) models.Event {
	t.Helper()
	select {
	case ev, ok := <-ses.Events():
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestSubscribeSendsFrame(t *testing.T) {
	server := newWSServer(t)
	ses, err := Dial(testConfig(server.url()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ses.Close()

	id, err := ses.Subscribe(models.Trades("BTC"))
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero subscription id")
	}

	frame := server.nextFrame(t)
	if frame["method"] != "subscribe" {
		t.Errorf("expected subscribe method, got %v", frame["method"])
	}
	sub, _ := frame["subscription"].(map[string]any)
	if sub["type"] != "trades" || sub["coin"] != "BTC" {
		t.Errorf("unexpected subscription payload: %v", sub)
	}
}

func TestUnsubscribeSendsFrame(t *testing.T) {
	server := newWSServer(t)
	ses, err := Dial(testConfig(server.url()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ses.Close()

	id, err := ses.Subscribe(models.L2BookSub("ETH"))
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	server.nextFrame(t)

	if err := ses.Unsubscribe(id); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	frame := server.nextFrame(t)
	if frame["method"] != "unsubscribe" {
		t.Errorf("expected unsubscribe method, got %v", frame["method"])
	}
}

func TestUnsubscribeUnknownID(t *testing.T) {
	server := newWSServer(t)
	ses, err := Dial(testConfig(server.url()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ses.Close()

	if err := ses.Unsubscribe(99); err == nil {
		t.Error("expected error for unknown subscription id")
	}
}

func TestEventsDecodedAndOrdered(t *testing.T) {
	server := newWSServer(t)
	ses, err := Dial(testConfig(server.url()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ses.Close()

	server.send(t, `{"channel":"allMids","data":{"mids":{"BTC":"50000"}}}`)
	server.send(t, `{"channel":"trades","data":[{"coin":"BTC","side":"B","px":"50000.5","sz":"0.1","time":1700000000000,"tid":1,"hash":"0x1"}]}`)

	ev := recvEvent(t, ses)
	if ev.Kind != models.EventMids || ev.Mids["BTC"] != "50000" {
		t.Errorf("expected mids event first, got %+v", ev)
	}

	ev = recvEvent(t, ses)
	if ev.Kind != models.EventTrades || len(ev.Trades) != 1 {
		t.Fatalf("expected trades event, got %+v", ev)
	}
	if ev.Trades[0].Price != 50000.5 {
		t.Errorf("price not parsed, got %v", ev.Trades[0].Price)
	}
}

func TestControlFramesFiltered(t *testing.T) {
	server := newWSServer(t)
	ses, err := Dial(testConfig(server.url()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ses.Close()

	server.send(t, `{"channel":"subscriptionResponse","data":{}}`)
	server.send(t, `{"channel":"pong"}`)
	server.send(t, `{"channel":"allMids","data":{"mids":{"ETH":"3000"}}}`)

	ev := recvEvent(t, ses)
	if ev.Kind != models.EventMids {
		t.Errorf("control frames must be filtered, got %+v", ev)
	}
}

func TestServerCloseEmitsDisconnected(t *testing.T) {
	server := newWSServer(t)
	ses, err := Dial(testConfig(server.url()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ses.Close()

	server.closeClient()

	ev := recvEvent(t, ses)
	if ev.Kind != models.EventDisconnected {
		t.Fatalf("expected disconnect signal, got %+v", ev)
	}

	select {
	case _, ok := <-ses.Events():
		if ok {
			t.Error("expected channel close after disconnect signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	server := newWSServer(t)
	ses, err := Dial(testConfig(server.url()))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := ses.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := ses.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got: %v", err)
	}
}
