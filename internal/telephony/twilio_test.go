package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"call-assistant/internal/apperr"
	"call-assistant/internal/calls"
	"call-assistant/pkg/logger"
)

const accountPath = "/2010-04-01/Accounts/AC1"

type capturedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

type fakeTwilio struct {
	mu       sync.Mutex
	requests []capturedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeTwilio(t *testing.T) (*fakeTwilio, *TwilioProvider) {
	t.Helper()
	f := &fakeTwilio{routes: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code":20003,"message":"Authenticate","status":401}`)
			return
		}
		_ = r.ParseForm()
		f.mu.Lock()
		f.requests = append(f.requests, capturedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Form: r.PostForm})
		h, ok := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, `{"code":20404,"message":"The requested resource %s was not found","status":404}`, r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	p, err := NewTwilioProvider(TwilioOptions{
		AccountSID:        "AC1",
		AuthToken:         "secret",
		From:              "+15557654321",
		BaseURL:           srv.URL,
		StatusCallbackURL: "https://example.test/webhook/call-status",
	}, logger.Discard())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return f, p
}

func (f *fakeTwilio) handle(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+accountPath+path] = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeTwilio) last() capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestTwilioPlaceCall(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodPost, "/Calls.json", `{"sid":"CA1","status":"queued","to":"+15551234567","from":"+15557654321","duration":null,"price":null}`)

	placed, err := p.PlaceCall(context.Background(), PlaceCallRequest{To: "+15551234567", Message: "hello", Voice: "alice", Language: "en-US"})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if placed.ID != "CA1" || placed.Status != calls.CallStatusQueued || placed.From != "+15557654321" {
		t.Fatalf("unexpected placed call: %+v", placed)
	}

	req := f.last()
	if req.Form.Get("To") != "+15551234567" || req.Form.Get("From") != "+15557654321" {
		t.Fatalf("unexpected form: %v", req.Form)
	}
	if !strings.Contains(req.Form.Get("Twiml"), `<Say voice="alice" language="en-US">hello</Say>`) {
		t.Fatalf("unexpected twiml: %s", req.Form.Get("Twiml"))
	}
	if req.Form.Get("StatusCallback") != "https://example.test/webhook/call-status" {
		t.Fatalf("expected status callback, got %v", req.Form)
	}
	if got := req.Form["StatusCallbackEvent"]; len(got) != 4 || got[0] != "initiated" || got[3] != "completed" {
		t.Fatalf("unexpected callback events: %v", got)
	}
}

func TestTwilioGetCallStatus_ObservedForm(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodGet, "/Calls/CA1.json", `{"sid":"CA1","status":"in-progress","duration":"0","price":"-0.01","start_time":"Tue, 07 Jan 2025 10:00:00 +0000","end_time":null}`)
	f.handle(http.MethodGet, "/Calls/CA2.json", `{"sid":"CA2","status":"completed","duration":"42","price":"-0.0130","price_unit":"USD","start_time":"Tue, 07 Jan 2025 10:00:00 +0000","end_time":"Tue, 07 Jan 2025 10:00:42 +0000"}`)

	c, err := p.GetCallStatus(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if c.Duration != nil || c.Price != nil || c.EndTime != nil {
		t.Fatalf("expected end-of-call fields unknown while in progress, got %+v", c)
	}
	if c.StartTime == nil || c.StartTime.Hour() != 10 {
		t.Fatalf("expected start time, got %v", c.StartTime)
	}

	done, err := p.GetCallStatus(context.Background(), "CA2")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if done.Duration == nil || *done.Duration != 42 || done.Price == nil || *done.Price != "-0.0130" || done.EndTime == nil {
		t.Fatalf("expected billing fields on completed call, got %+v", done)
	}
}

func TestTwilioProviderError(t *testing.T) {
	_, p := newFakeTwilio(t)

	_, err := p.GetCallStatus(context.Background(), "CAmissing")
	if !errors.Is(err, apperr.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !strings.Contains(err.Error(), "was not found") {
		t.Fatalf("expected upstream message, got %q", err.Error())
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 20404 || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected api error details, got %+v", apiErr)
	}
}

func TestTwilioListCalls(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodGet, "/Calls.json", `{"calls":[{"sid":"CA2","status":"completed","duration":"5"},{"sid":"CA1","status":"completed","duration":"9"}]}`)

	got, err := p.ListCalls(context.Background(), ListCallsRequest{Limit: 20, Status: calls.CallStatusCompleted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "CA2" {
		t.Fatalf("expected provider order preserved, got %+v", got)
	}
	req := f.last()
	if req.Query.Get("PageSize") != "20" || req.Query.Get("Status") != "completed" {
		t.Fatalf("expected server-side filter, got %v", req.Query)
	}
}

func TestTwilioCancelCall(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodGet, "/Calls/CA1.json", `{"sid":"CA1","status":"ringing"}`)
	f.handle(http.MethodPost, "/Calls/CA1.json", `{"sid":"CA1","status":"canceled"}`)
	f.handle(http.MethodGet, "/Calls/CA2.json", `{"sid":"CA2","status":"in-progress"}`)
	f.handle(http.MethodPost, "/Calls/CA2.json", `{"sid":"CA2","status":"completed","duration":"3"}`)
	f.handle(http.MethodGet, "/Calls/CA3.json", `{"sid":"CA3","status":"busy"}`)

	c, err := p.CancelCall(context.Background(), "CA1")
	if err != nil || c.Status != calls.CallStatusCanceled {
		t.Fatalf("expected canceled, got %+v %v", c, err)
	}
	if f.last().Form.Get("Status") != "canceled" {
		t.Fatalf("expected canceled update, got %v", f.last().Form)
	}

	c, err = p.CancelCall(context.Background(), "CA2")
	if err != nil || c.Status != calls.CallStatusCompleted {
		t.Fatalf("expected hang up, got %+v %v", c, err)
	}
	if f.last().Form.Get("Status") != "completed" {
		t.Fatalf("expected completed update, got %v", f.last().Form)
	}

	if _, err := p.CancelCall(context.Background(), "CA3"); !errors.Is(err, apperr.ErrCallEnded) {
		t.Fatalf("expected CallEnded, got %v", err)
	}
}

func TestTwilioRecordingLifecycle(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodPost, "/Calls/CA1/Recordings.json", `{"sid":"RE1","call_sid":"CA1","status":"in-progress","channels":2,"duration":"-1","uri":"/2010-04-01/Accounts/AC1/Recordings/RE1.json"}`)
	f.handle(http.MethodGet, "/Calls/CA1/Recordings.json", `{"recordings":[{"sid":"RE1","call_sid":"CA1","status":"in-progress","channels":2}]}`)
	f.handle(http.MethodPost, "/Calls/CA1/Recordings/RE1.json", `{"sid":"RE1","call_sid":"CA1","status":"stopped","channels":2,"duration":"12","uri":"/2010-04-01/Accounts/AC1/Recordings/RE1.json"}`)

	rec, err := p.StartRecording(context.Background(), StartRecordingRequest{CallID: "CA1", Channels: calls.RecordingChannelDual, CallbackURL: "https://example.test/rec"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.ID != "RE1" || rec.Status != calls.RecordingStatusRecording || rec.Duration != nil || rec.Channels != calls.RecordingChannelDual {
		t.Fatalf("unexpected recording: %+v", rec)
	}
	if form := f.last().Form; form.Get("RecordingChannels") != "dual" || form.Get("RecordingStatusCallback") != "https://example.test/rec" {
		t.Fatalf("unexpected start form: %v", form)
	}

	stopped, err := p.StopRecording(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != calls.RecordingStatusStopped || stopped.Duration == nil || *stopped.Duration != 12 {
		t.Fatalf("unexpected stopped recording: %+v", stopped)
	}
	if !strings.HasSuffix(stopped.URL, "/2010-04-01/Accounts/AC1/Recordings/RE1") {
		t.Fatalf("unexpected recording url %q", stopped.URL)
	}
}

func TestTwilioStopRecording_NoActive(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodGet, "/Calls/CA1/Recordings.json", `{"recordings":[]}`)
	f.handle(http.MethodGet, "/Calls/CA2/Recordings.json", `{"recordings":[{"sid":"RE9","status":"completed"}]}`)

	for _, id := range []string{"CA1", "CA2"} {
		if _, err := p.StopRecording(context.Background(), id); !errors.Is(err, apperr.ErrNoActiveRecording) {
			t.Fatalf("%s: expected NoActiveRecording, got %v", id, err)
		}
	}
}

func TestTwilioLatestRecordingAndAudio(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodGet, "/Recordings.json", `{"recordings":[{"sid":"RE2","call_sid":"CA1","status":"processing"},{"sid":"RE1","call_sid":"CA1","status":"completed","duration":"30","uri":"/2010-04-01/Accounts/AC1/Recordings/RE1.json"}]}`)
	f.handle(http.MethodGet, "/Recordings/RE1.wav", "RIFFdata")

	rec, err := p.LatestRecording(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec.ID != "RE1" || rec.Status != calls.RecordingStatusCompleted {
		t.Fatalf("unexpected recording: %+v", rec)
	}
	if f.last().Query.Get("CallSid") != "CA1" {
		t.Fatalf("expected CallSid filter, got %v", f.last().Query)
	}

	audio, err := p.FetchRecordingAudio(context.Background(), rec)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(audio) != "RIFFdata" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestTwilioLatestRecording_NoneCompleted(t *testing.T) {
	f, p := newFakeTwilio(t)
	f.handle(http.MethodGet, "/Recordings.json", `{"recordings":[]}`)
	if _, err := p.LatestRecording(context.Background(), "CA1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestNewTwilioProvider_RequiresCredentials(t *testing.T) {
	if _, err := NewTwilioProvider(TwilioOptions{From: "+1"}, nil); err == nil {
		t.Fatalf("expected credentials error")
	}
	if _, err := NewTwilioProvider(TwilioOptions{AccountSID: "AC1", AuthToken: "x"}, nil); err == nil {
		t.Fatalf("expected from error")
	}
}
