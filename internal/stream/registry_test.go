package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"call-assistant/internal/jsonrpc"
	"call-assistant/pkg/logger"

	"github.com/gorilla/websocket"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	reg := NewRegistry(logger.Discard(), Options{})
	srv := httptest.NewServer(reg)
	t.Cleanup(func() {
		reg.Close()
		srv.Close()
	})
	return reg, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var out map[string]any
	if err := ws.ReadJSON(&out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (r *Registry) routed(streamID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.streams[streamID]
	return ok
}

func (r *Registry) openConns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func echoMethod(reg *Registry) {
	reg.RegisterMethodHandler("ping", func(_ context.Context, c *Conn, req RPCRequest) {
		_ = c.Send(jsonrpc.NewResult(req.ID, map[string]string{"conn": c.ID}))
	})
}

func TestRegistry_InvalidJSONRepliesToSender(t *testing.T) {
	_, url := newTestRegistry(t)
	ws := dial(t, url)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readJSON(t, ws)
	if got["type"] != "error" || got["error"] != "Invalid message format" {
		t.Fatalf("unexpected reply %v", got)
	}
}

func TestRegistry_UnknownMethodEchoesID(t *testing.T) {
	_, url := newTestRegistry(t)
	ws := dial(t, url)

	_ = ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 42, "method": "tools/nope"})
	got := readJSON(t, ws)
	errObj, _ := got["error"].(map[string]any)
	if got["id"] != float64(42) || errObj["code"] != float64(jsonrpc.CodeMethodNotFound) || errObj["message"] != "No handler for method: tools/nope" {
		t.Fatalf("unexpected reply %v", got)
	}
}

func TestRegistry_RoutesMethodsAndStreams(t *testing.T) {
	reg, url := newTestRegistry(t)
	echoMethod(reg)

	frames := make(chan StreamFrame, 4)
	reg.RegisterStreamHandler("CA1", func(f StreamFrame) { frames <- f })

	ws := dial(t, url)
	_ = ws.WriteJSON(map[string]any{"type": "media", "streamSid": "unknown", "payload": "AAAA"})
	_ = ws.WriteJSON(map[string]any{"event": "media", "streamSid": "CA1", "media": map[string]string{"payload": "AAAA"}})
	_ = ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": "p1", "method": "ping"})

	// Frames for unrouted streams are dropped silently, so the first reply is the ping result.
	got := readJSON(t, ws)
	if got["id"] != "p1" || got["result"] == nil {
		t.Fatalf("unexpected reply %v", got)
	}

	select {
	case f := <-frames:
		if f.Type != FrameMedia || f.Payload != "AAAA" {
			t.Fatalf("unexpected frame %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("stream handler not invoked")
	}
}

func TestRegistry_UnrecognizedShapeGetsErrorReply(t *testing.T) {
	_, url := newTestRegistry(t)
	ws := dial(t, url)
	_ = ws.WriteJSON(map[string]any{"hello": "world"})
	got := readJSON(t, ws)
	if got["type"] != "error" {
		t.Fatalf("unexpected reply %v", got)
	}
}

func TestRegistry_CloseNotifiesHandlersAndDropsOwnedRoutes(t *testing.T) {
	reg, url := newTestRegistry(t)
	echoMethod(reg)

	fed := make(chan StreamFrame, 8)
	idle := make(chan StreamFrame, 8)
	reg.RegisterStreamHandler("CA1", func(f StreamFrame) { fed <- f })
	reg.RegisterStreamHandler("CA2", func(f StreamFrame) { idle <- f })

	feeder := dial(t, url)
	observer := dial(t, url)
	waitFor(t, "two connections", func() bool { return reg.openConns() == 2 })

	_ = feeder.WriteJSON(map[string]any{"type": "media", "streamSid": "CA1", "payload": "AAAA"})
	<-fed

	// Learn the feeder's connection id.
	_ = feeder.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"})
	feederID := readJSON(t, feeder)["result"].(map[string]any)["conn"].(string)

	_ = feeder.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = feeder.Close()

	for name, ch := range map[string]chan StreamFrame{"CA1": fed, "CA2": idle} {
		select {
		case f := <-ch:
			if f.Type != FrameError || f.Reason != "Connection closed" || f.ConnID != feederID || f.StreamSid != name {
				t.Fatalf("%s: unexpected synthetic frame %+v", name, f)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("%s: handler not notified of close", name)
		}
	}

	waitFor(t, "owned route removal", func() bool { return !reg.routed("CA1") })
	if !reg.routed("CA2") {
		t.Fatalf("route not owned by the closed socket must survive")
	}
	if got := reg.openConns(); got != 1 {
		t.Fatalf("expected one open connection, got %d", got)
	}

	// The surviving socket still works.
	_ = observer.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 2, "method": "ping"})
	if got := readJSON(t, observer); got["id"] != float64(2) {
		t.Fatalf("unexpected reply %v", got)
	}
}

func TestRegistry_BroadcastReachesEverySocket(t *testing.T) {
	reg, url := newTestRegistry(t)
	a := dial(t, url)
	b := dial(t, url)
	waitFor(t, "two connections", func() bool { return reg.openConns() == 2 })

	if n := reg.Broadcast("CA1", map[string]string{"type": "transcription", "callId": "CA1"}); n != 2 {
		t.Fatalf("expected fan-out to 2 connections, got %d", n)
	}
	for _, ws := range []*websocket.Conn{a, b} {
		got := readJSON(t, ws)
		if got["callId"] != "CA1" {
			t.Fatalf("unexpected broadcast %v", got)
		}
	}
}

func TestRegistry_StartFrameBindsMediaStreamToCall(t *testing.T) {
	reg, url := newTestRegistry(t)
	echoMethod(reg)
	ws := dial(t, url)

	// The start frame arrives before anyone is listening for the call.
	_ = ws.WriteJSON(map[string]any{
		"event":     "start",
		"streamSid": "MZ1",
		"start":     map[string]any{"streamSid": "MZ1", "callSid": "CA9"},
	})
	_ = ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"})
	readJSON(t, ws)

	frames := make(chan StreamFrame, 4)
	reg.RegisterStreamHandler("CA9", func(f StreamFrame) { frames <- f })
	_ = ws.WriteJSON(map[string]any{"event": "media", "streamSid": "MZ1", "media": map[string]string{"payload": "AAAA"}})

	select {
	case f := <-frames:
		if f.Type != FrameMedia || f.CallID != "CA9" || f.Payload != "AAAA" {
			t.Fatalf("unexpected frame %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("media for the aliased stream was not routed")
	}
}

func TestStreamFrameJSON(t *testing.T) {
	raw, _ := json.Marshal(StreamFrame{Type: FrameError, StreamSid: "CA1", Reason: "Connection closed", ConnID: "c1"})
	want := `{"type":"error","streamSid":"CA1","reason":"Connection closed","connId":"c1"}`
	if string(raw) != want {
		t.Fatalf("got %s want %s", raw, want)
	}
}
