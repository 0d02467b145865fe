package stream

import (
	"encoding/json"
	"errors"
	"strings"

	"call-assistant/internal/jsonrpc"
)

// Frame is one decoded inbound socket message: RPCRequest, StreamFrame or Unrecognized.
type Frame interface {
	isFrame()
}

// RPCRequest is a JSON-RPC envelope routed by method name.
type RPCRequest struct {
	jsonrpc.Request
}

// Stream frame types.
const (
	FrameStart = "start"
	FrameMedia = "media"
	FrameMark  = "mark"
	FrameStop  = "stop"
	FrameError = "error"
)

// StreamFrame is a media-stream message routed by stream identifier.
type StreamFrame struct {
	Type      string `json:"type"`
	StreamSid string `json:"streamSid"`
	// Payload is base64 audio for media frames.
	Payload string `json:"payload,omitempty"`
	// Name labels mark frames.
	Name string `json:"name,omitempty"`

	// Reason is set on synthetic error frames emitted when a socket closes.
	Reason string `json:"reason,omitempty"`
	// ConnID is the socket that delivered the frame, or that closed for synthetic errors.
	ConnID string `json:"connId,omitempty"`
	// CallID is carried by media-stream start frames, whose streamSid is not the call id.
	CallID string `json:"callId,omitempty"`
}

// Unrecognized is valid JSON matching no known shape.
type Unrecognized struct {
	Raw json.RawMessage
}

func (RPCRequest) isFrame()   {}
func (StreamFrame) isFrame()  {}
func (Unrecognized) isFrame() {}

var ErrInvalidFrame = errors.New("stream: invalid message format")

// wireFrame accepts both the flat legacy shape ({type, streamSid, payload, name}) and the nested
// media-stream shape ({event, streamSid, media:{payload}, mark:{name}}).
type wireFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`

	Type      string `json:"type"`
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Payload   string `json:"payload"`
	Name      string `json:"name"`
	Media     *struct {
		Payload string `json:"payload"`
	} `json:"media"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark"`
	Start *struct {
		CallSid          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start"`
}

// Decode classifies a text frame. Only malformed JSON is an error.
func Decode(data []byte) (Frame, error) {
	var p wireFrame
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrInvalidFrame
	}

	if method := strings.TrimSpace(p.Method); method != "" {
		return RPCRequest{Request: jsonrpc.Request{JSONRPC: p.JSONRPC, ID: p.ID, Method: method, Params: p.Params}}, nil
	}

	typ := strings.TrimSpace(p.Type)
	if typ == "" {
		typ = strings.TrimSpace(p.Event)
	}
	sid := strings.TrimSpace(p.StreamSid)
	if typ != "" && sid != "" {
		f := StreamFrame{Type: typ, StreamSid: sid, Payload: p.Payload, Name: p.Name}
		if f.Payload == "" && p.Media != nil {
			f.Payload = p.Media.Payload
		}
		if f.Name == "" && p.Mark != nil {
			f.Name = p.Mark.Name
		}
		if p.Start != nil {
			f.CallID = strings.TrimSpace(p.Start.CustomParameters["callId"])
			if f.CallID == "" {
				f.CallID = strings.TrimSpace(p.Start.CallSid)
			}
		}
		return f, nil
	}

	return Unrecognized{Raw: append(json.RawMessage(nil), data...)}, nil
}
