package stream

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		check func(t *testing.T, f Frame)
	}{
		{"rpc", `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`, func(t *testing.T, f Frame) {
			req, ok := f.(RPCRequest)
			if !ok || req.Method != "tools/list" || string(req.ID) != "7" {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
		{"legacy media", `{"type":"media","streamSid":"CA1","payload":"AAAA"}`, func(t *testing.T, f Frame) {
			sf, ok := f.(StreamFrame)
			if !ok || sf.Type != FrameMedia || sf.StreamSid != "CA1" || sf.Payload != "AAAA" {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
		{"nested media", `{"event":"media","streamSid":"CA1","media":{"payload":"BBBB"}}`, func(t *testing.T, f Frame) {
			sf, ok := f.(StreamFrame)
			if !ok || sf.Type != FrameMedia || sf.Payload != "BBBB" {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
		{"nested mark", `{"event":"mark","streamSid":"CA1","mark":{"name":"greeting"}}`, func(t *testing.T, f Frame) {
			sf, ok := f.(StreamFrame)
			if !ok || sf.Type != FrameMark || sf.Name != "greeting" {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
		{"start with call sid", `{"event":"start","streamSid":"MZ1","start":{"streamSid":"MZ1","callSid":"CA1"}}`, func(t *testing.T, f Frame) {
			sf, ok := f.(StreamFrame)
			if !ok || sf.Type != FrameStart || sf.StreamSid != "MZ1" || sf.CallID != "CA1" {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
		{"start with custom call id", `{"event":"start","streamSid":"MZ1","start":{"callSid":"CA1","customParameters":{"callId":"CA2"}}}`, func(t *testing.T, f Frame) {
			sf, ok := f.(StreamFrame)
			if !ok || sf.CallID != "CA2" {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
		{"unrecognized", `{"hello":"world"}`, func(t *testing.T, f Frame) {
			if _, ok := f.(Unrecognized); !ok {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
		{"type without stream", `{"type":"media"}`, func(t *testing.T, f Frame) {
			if _, ok := f.(Unrecognized); !ok {
				t.Fatalf("unexpected frame %#v", f)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Decode([]byte(tc.in))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tc.check(t, f)
		})
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	for _, in := range []string{`{`, `not json`, `42`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrInvalidFrame) {
			t.Fatalf("%q: expected ErrInvalidFrame, got %v", in, err)
		}
	}
}
