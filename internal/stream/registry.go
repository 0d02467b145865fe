// Package stream manages duplex socket connections and routes their frames.
//
// JSON-RPC requests are routed by method name; media-stream frames are routed by stream identifier
// to the handler registered for it (the audio accumulator). A media-stream start frame naming a call
// binds its own stream sid to that call for the rest of the socket's life. When a socket goes away every registered
// stream handler hears a synthetic error frame, and routes owned by that socket are dropped.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"call-assistant/internal/jsonrpc"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StreamHandler receives frames for one stream. It runs on the feeding socket's read goroutine,
// and frames carry the ConnID of the socket that delivered them.
type StreamHandler func(StreamFrame)

// MethodHandler serves one JSON-RPC method and replies through conn.
type MethodHandler func(ctx context.Context, conn *Conn, req RPCRequest)

type Options struct {
	SendBuffer   int
	ReadLimit    int64
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingInterval time.Duration

	// CheckOrigin defaults to allowing all origins; agents connect from servers, not browsers.
	CheckOrigin func(*http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	return o
}

type streamRoute struct {
	handler StreamHandler
	// owner is the connection that fed the first frame; empty until then.
	owner string
}

// streamAlias maps a media stream's own sid onto the call id it was started for.
type streamAlias struct {
	key  string
	conn string
}

type Registry struct {
	opts     Options
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	conns   map[string]*Conn
	streams map[string]*streamRoute
	aliases map[string]streamAlias
	methods map[string]MethodHandler
	wg      sync.WaitGroup
}

func NewRegistry(log *slog.Logger, opts Options) *Registry {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	return &Registry{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		log:      log.With("component", "stream"),
		conns:    map[string]*Conn{},
		streams:  map[string]*streamRoute{},
		aliases:  map[string]streamAlias{},
		methods:  map[string]MethodHandler{},
	}
}

func (r *Registry) RegisterMethodHandler(method string, h MethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = h
}

// RegisterStreamHandler binds streamID's frames to h, replacing any previous binding.
func (r *Registry) RegisterStreamHandler(streamID string, h StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[streamID] = &streamRoute{handler: h}
}

func (r *Registry) UnregisterStreamHandler(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, streamID)
}

// Broadcast queues msg on every open connection, not only those feeding callID.
// It returns the number of connections the message was queued on.
func (r *Registry) Broadcast(callID string, msg any) int {
	raw, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("broadcast marshal failed", "call_id", callID, "err", err)
		return 0
	}
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if err := c.sendRaw(raw); err != nil {
			r.log.Warn("broadcast send failed", "call_id", callID, "conn_id", c.ID, "err", err)
			continue
		}
		sent++
	}
	return sent
}

// ServeHTTP upgrades the request and serves the socket until it closes.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := newConn(uuid.NewString(), ws, r.opts)

	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
	r.log.Info("connection opened", "conn_id", c.ID, "remote", req.RemoteAddr)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		c.writePump()
	}()
	r.readPump(c)
}

func (r *Registry) readPump(c *Conn) {
	defer r.closeConn(c)

	c.ws.SetReadLimit(r.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(r.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(r.opts.PongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				r.log.Warn("connection read failed", "conn_id", c.ID, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			_ = c.Send(errorReply("Invalid message format"))
			continue
		}
		r.dispatch(c, data)
	}
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func errorReply(msg string) errorFrame { return errorFrame{Type: "error", Error: msg} }

func (r *Registry) dispatch(c *Conn, data []byte) {
	frame, err := Decode(data)
	if err != nil {
		r.log.Debug("invalid frame", "conn_id", c.ID, "err", err)
		_ = c.Send(errorReply("Invalid message format"))
		return
	}

	switch f := frame.(type) {
	case RPCRequest:
		r.mu.RLock()
		h, ok := r.methods[f.Method]
		r.mu.RUnlock()
		if !ok {
			r.log.Warn("no handler for method", "conn_id", c.ID, "method", f.Method)
			_ = c.Send(jsonrpc.NewError(f.ID, jsonrpc.CodeMethodNotFound, "No handler for method: "+f.Method, nil))
			return
		}
		h(c.ctx, c, f)

	case StreamFrame:
		f.ConnID = c.ID
		r.mu.Lock()
		if f.CallID != "" && f.CallID != f.StreamSid {
			r.aliases[f.StreamSid] = streamAlias{key: f.CallID, conn: c.ID}
		}
		route, ok := r.streams[f.StreamSid]
		if !ok {
			if a, aliased := r.aliases[f.StreamSid]; aliased {
				f.CallID = a.key
				route, ok = r.streams[a.key]
			}
		}
		if ok && route.owner == "" {
			route.owner = c.ID
		}
		r.mu.Unlock()
		if !ok {
			r.log.Debug("no handler for stream", "conn_id", c.ID, "stream_sid", f.StreamSid, "type", f.Type)
			return
		}
		route.handler(f)

	case Unrecognized:
		r.log.Debug("unrecognized frame", "conn_id", c.ID)
		_ = c.Send(errorReply("Unrecognized message"))
	}
}

// closeConn removes c, notifies every stream handler, then drops routes c owned.
// It runs once per connection, when its read pump exits.
func (r *Registry) closeConn(c *Conn) {
	c.close()

	r.mu.Lock()
	delete(r.conns, c.ID)
	for sid, a := range r.aliases {
		if a.conn == c.ID {
			delete(r.aliases, sid)
		}
	}
	type pending struct {
		id    string
		route *streamRoute
	}
	routes := make([]pending, 0, len(r.streams))
	for id, route := range r.streams {
		routes = append(routes, pending{id: id, route: route})
	}
	r.mu.Unlock()

	for _, p := range routes {
		p.route.handler(StreamFrame{Type: FrameError, StreamSid: p.id, Reason: "Connection closed", ConnID: c.ID})
	}

	r.mu.Lock()
	for _, p := range routes {
		if cur, ok := r.streams[p.id]; ok && cur == p.route && cur.owner == c.ID {
			delete(r.streams, p.id)
		}
	}
	r.mu.Unlock()

	r.log.Info("connection closed", "conn_id", c.ID)
}

// Close shuts every connection and waits for their writers to finish.
func (r *Registry) Close() {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
	r.wg.Wait()
}
