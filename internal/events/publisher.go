// Package events relays call lifecycle and transcription updates to an MQTT broker.
package events

import "context"

// Publisher publishes raw payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
