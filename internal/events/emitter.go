package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// Emitter serialises domain events as JSON under a topic prefix.
//
// Publishing is best-effort: failures are logged and never returned to the caller, so a broker
// outage cannot fail a webhook or a tool call. A nil *Emitter is a valid no-op.
type Emitter struct {
	pub    Publisher
	prefix string
	log    *slog.Logger
}

func NewEmitter(pub Publisher, prefix string, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{pub: pub, prefix: strings.Trim(prefix, "/"), log: log}
}

// Topic builds "<prefix>/<callID>/<kind>".
func (e *Emitter) Topic(callID, kind string) string {
	parts := make([]string, 0, 3)
	if e.prefix != "" {
		parts = append(parts, e.prefix)
	}
	if callID == "" {
		callID = "_"
	}
	return strings.Join(append(parts, callID, kind), "/")
}

// Emit publishes v under the call's kind topic.
func (e *Emitter) Emit(ctx context.Context, callID, kind string, v any) {
	if e == nil || e.pub == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		e.log.Error("event marshal failed", "kind", kind, "call_id", callID, "err", err)
		return
	}
	topic := e.Topic(callID, kind)
	if err := e.pub.Publish(ctx, topic, payload); err != nil {
		e.log.Warn("event publish failed", "topic", topic, "err", err)
	}
}

func (e *Emitter) Close() error {
	if e == nil || e.pub == nil {
		return nil
	}
	return e.pub.Close()
}
