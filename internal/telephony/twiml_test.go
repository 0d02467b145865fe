package telephony

import (
	"strings"
	"testing"
)

func TestRenderSay(t *testing.T) {
	xml, err := RenderSay("hello & welcome", "alice", "en-US", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := `<Response><Say voice="alice" language="en-US">hello &amp; welcome</Say><Hangup></Hangup></Response>`
	if !strings.Contains(xml, want) {
		t.Fatalf("expected %q in xml: %s", want, xml)
	}
	if !strings.HasPrefix(xml, "<?xml") {
		t.Fatalf("expected xml header: %s", xml)
	}
}

func TestRenderSayOmitsEmptyAttributes(t *testing.T) {
	xml, err := RenderSay("hi", "", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>hi</Say>") {
		t.Fatalf("unexpected xml: %s", xml)
	}
}

func TestRenderSayRequiresMessage(t *testing.T) {
	if _, err := RenderSay("  ", "alice", "en-US", ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderSayStartsMediaStream(t *testing.T) {
	xml, err := RenderSay("hi", "alice", "en-US", "wss://calls.example.com/mcp")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := `<Response><Start><Stream url="wss://calls.example.com/mcp" track="inbound_track"></Stream></Start><Say`
	if !strings.Contains(xml, want) {
		t.Fatalf("expected %q in xml: %s", want, xml)
	}
}
