package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"call-assistant/internal/apperr"
	"call-assistant/internal/calls"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	twilioAPIVersion     = "2010-04-01"

	// Whisper rejects uploads over 25 MB; larger recordings are not worth downloading.
	maxRecordingBytes = 25 << 20
)

// TwilioOptions configures the REST adapter.
type TwilioOptions struct {
	AccountSID string
	AuthToken  string
	// From is the originating number for placed calls.
	From string

	// BaseURL overrides the API origin (tests point it at httptest).
	BaseURL           string
	StatusCallbackURL string
	// MediaStreamURL, when set, forks every placed call's audio to this websocket.
	MediaStreamURL string
	Timeout        time.Duration
}

// TwilioProvider talks to Twilio's 2010-04-01 REST API over plain HTTP with form-encoded bodies.
type TwilioProvider struct {
	opts   TwilioOptions
	client *http.Client
	log    *slog.Logger
}

func NewTwilioProvider(opts TwilioOptions, log *slog.Logger) (*TwilioProvider, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, errors.New("telephony: twilio credentials required")
	}
	if opts.From == "" {
		return nil, errors.New("telephony: twilio from number required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultTwilioBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &TwilioProvider{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		log:    log.With("provider", "twilio"),
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlacedCall, error) {
	twiml, err := RenderSay(req.Message, req.Voice, req.Language, p.opts.MediaStreamURL)
	if err != nil {
		return PlacedCall{}, apperr.Wrap(apperr.KindInvalidArguments, err, "%s", err.Error())
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", p.opts.From)
	form.Set("Twiml", twiml)
	if p.opts.StatusCallbackURL != "" {
		form.Set("StatusCallback", p.opts.StatusCallbackURL)
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	var out twilioCall
	if err := p.do(ctx, http.MethodPost, "/Calls.json", form, &out); err != nil {
		return PlacedCall{}, err
	}
	p.log.Info("call placed", "call_id", out.SID, "status", out.Status)
	return PlacedCall{ID: out.SID, Status: calls.CallStatus(out.Status), To: out.To, From: out.From}, nil
}

func (p *TwilioProvider) GetCallStatus(ctx context.Context, callID string) (calls.Call, error) {
	c, err := p.fetchCall(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	return c.Observed(), nil
}

func (p *TwilioProvider) ListCalls(ctx context.Context, req ListCallsRequest) ([]calls.Call, error) {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("PageSize", strconv.Itoa(req.Limit))
	}
	if req.Status != "" {
		q.Set("Status", string(req.Status))
	}

	var out struct {
		Calls []twilioCall `json:"calls"`
	}
	if err := p.do(ctx, http.MethodGet, "/Calls.json", q, &out); err != nil {
		return nil, err
	}

	res := make([]calls.Call, 0, len(out.Calls))
	for _, c := range out.Calls {
		res = append(res, c.toCall().Observed())
	}
	if req.Limit > 0 && len(res) > req.Limit {
		res = res[:req.Limit]
	}
	return res, nil
}

// CancelCall cancels a call that has not been answered and hangs up one that has.
func (p *TwilioProvider) CancelCall(ctx context.Context, callID string) (calls.Call, error) {
	current, err := p.fetchCall(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if current.Status.Terminal() {
		return calls.Call{}, apperr.New(apperr.KindCallEnded, "Call %s has already ended (status: %s)", callID, current.Status)
	}

	target := calls.CallStatusCanceled
	if current.Status == calls.CallStatusInProgress {
		target = calls.CallStatusCompleted
	}

	form := url.Values{}
	form.Set("Status", string(target))
	var out twilioCall
	if err := p.do(ctx, http.MethodPost, "/Calls/"+url.PathEscape(callID)+".json", form, &out); err != nil {
		return calls.Call{}, err
	}
	p.log.Info("call canceled", "call_id", callID, "status", out.Status)
	return out.toCall().Observed(), nil
}

func (p *TwilioProvider) StartRecording(ctx context.Context, req StartRecordingRequest) (calls.Recording, error) {
	form := url.Values{}
	channels := "dual"
	if req.Channels == calls.RecordingChannelSingle {
		channels = "mono"
	}
	form.Set("RecordingChannels", channels)
	if req.CallbackURL != "" {
		form.Set("RecordingStatusCallback", req.CallbackURL)
	}

	var out twilioRecording
	if err := p.do(ctx, http.MethodPost, "/Calls/"+url.PathEscape(req.CallID)+"/Recordings.json", form, &out); err != nil {
		return calls.Recording{}, err
	}
	p.log.Info("recording started", "call_id", req.CallID, "recording_id", out.SID)
	return out.toRecording(p.opts.BaseURL), nil
}

// StopRecording stops the first in-progress or paused recording on the call.
func (p *TwilioProvider) StopRecording(ctx context.Context, callID string) (calls.Recording, error) {
	recs, err := p.listRecordings(ctx, "/Calls/"+url.PathEscape(callID)+"/Recordings.json", nil)
	if err != nil {
		return calls.Recording{}, err
	}

	var active *twilioRecording
	for i := range recs {
		if recs[i].Status == "in-progress" || recs[i].Status == "paused" {
			active = &recs[i]
			break
		}
	}
	if active == nil {
		return calls.Recording{}, apperr.New(apperr.KindNoActiveRecording, "No active recording found for call %s", callID)
	}

	form := url.Values{}
	form.Set("Status", "stopped")
	var out twilioRecording
	path := "/Calls/" + url.PathEscape(callID) + "/Recordings/" + url.PathEscape(active.SID) + ".json"
	if err := p.do(ctx, http.MethodPost, path, form, &out); err != nil {
		return calls.Recording{}, err
	}
	p.log.Info("recording stopped", "call_id", callID, "recording_id", out.SID)
	return out.toRecording(p.opts.BaseURL), nil
}

func (p *TwilioProvider) LatestRecording(ctx context.Context, callID string) (calls.Recording, error) {
	q := url.Values{}
	q.Set("CallSid", callID)
	q.Set("PageSize", "20")
	recs, err := p.listRecordings(ctx, "/Recordings.json", q)
	if err != nil {
		return calls.Recording{}, err
	}
	for _, r := range recs {
		if r.Status == "completed" {
			return r.toRecording(p.opts.BaseURL), nil
		}
	}
	return calls.Recording{}, apperr.New(apperr.KindNotFound, "No completed recording for call %s", callID)
}

func (p *TwilioProvider) FetchRecordingAudio(ctx context.Context, rec calls.Recording) ([]byte, error) {
	if rec.URL == "" {
		return nil, apperr.New(apperr.KindNotFound, "Recording %s has no media url", rec.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.URL+".wav", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.opts.AccountSID, p.opts.AuthToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "twilio: fetch recording %s: %v", rec.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeTwilioError(resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "twilio: read recording %s: %v", rec.ID, err)
	}
	if len(body) > maxRecordingBytes {
		return nil, apperr.New(apperr.KindProvider, "twilio: recording %s exceeds %d bytes", rec.ID, maxRecordingBytes)
	}
	return body, nil
}

func (p *TwilioProvider) fetchCall(ctx context.Context, callID string) (calls.Call, error) {
	var out twilioCall
	if err := p.do(ctx, http.MethodGet, "/Calls/"+url.PathEscape(callID)+".json", nil, &out); err != nil {
		return calls.Call{}, err
	}
	return out.toCall(), nil
}

func (p *TwilioProvider) listRecordings(ctx context.Context, path string, q url.Values) ([]twilioRecording, error) {
	var out struct {
		Recordings []twilioRecording `json:"recordings"`
	}
	if err := p.do(ctx, http.MethodGet, path, q, &out); err != nil {
		return nil, err
	}
	return out.Recordings, nil
}

// do sends an account-scoped request; GET encodes params as the query string, POST as a form body.
func (p *TwilioProvider) do(ctx context.Context, method, path string, params url.Values, out any) error {
	endpoint := p.opts.BaseURL + "/" + twilioAPIVersion + "/Accounts/" + url.PathEscape(p.opts.AccountSID) + path

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
	} else if params != nil {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("telephony: build request: %w", err)
	}
	req.SetBasicAuth(p.opts.AccountSID, p.opts.AuthToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "twilio: %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeTwilioError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "twilio: decode %s response: %v", path, err)
	}
	return nil
}

// APIError is Twilio's JSON error body.
type APIError struct {
	Status   int    `json:"status"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %d %s (code %d)", e.Status, e.Message, e.Code)
}

func decodeTwilioError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	apiErr.Status = resp.StatusCode
	return apperr.Wrap(apperr.KindProvider, apiErr, "Twilio error: %s", apiErr.Message)
}

type twilioCall struct {
	SID         string  `json:"sid"`
	To          string  `json:"to"`
	From        string  `json:"from"`
	Status      string  `json:"status"`
	Duration    *string `json:"duration"`
	Price       *string `json:"price"`
	PriceUnit   *string `json:"price_unit"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	DateUpdated *string `json:"date_updated"`
}

func (c twilioCall) toCall() calls.Call {
	out := calls.Call{
		ID:        c.SID,
		To:        c.To,
		From:      c.From,
		Status:    calls.CallStatus(c.Status),
		Duration:  parseOptionalInt(c.Duration),
		Price:     c.Price,
		StartTime: parseTwilioTime(c.StartTime),
		EndTime:   parseTwilioTime(c.EndTime),
	}
	if c.PriceUnit != nil {
		out.PriceUnit = *c.PriceUnit
	}
	if t := parseTwilioTime(c.DateUpdated); t != nil {
		out.UpdatedAt = *t
	}
	return out
}

type twilioRecording struct {
	SID      string  `json:"sid"`
	CallSID  string  `json:"call_sid"`
	Status   string  `json:"status"`
	Channels int     `json:"channels"`
	Duration *string `json:"duration"`
	URI      string  `json:"uri"`
}

func (r twilioRecording) toRecording(baseURL string) calls.Recording {
	out := calls.Recording{
		ID:       r.SID,
		CallID:   r.CallSID,
		Channels: calls.RecordingChannelSingle,
		Duration: parseOptionalInt(r.Duration),
	}
	if r.Channels == 2 {
		out.Channels = calls.RecordingChannelDual
	}
	switch r.Status {
	case "in-progress":
		out.Status = calls.RecordingStatusRecording
	case "completed":
		out.Status = calls.RecordingStatusCompleted
	default:
		out.Status = calls.RecordingStatusStopped
	}
	if r.URI != "" {
		out.URL = baseURL + strings.TrimSuffix(r.URI, ".json")
	}
	return out
}

// parseOptionalInt treats missing, malformed and negative values (Twilio reports -1 while recording) as unknown.
func parseOptionalInt(s *string) *int {
	if s == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func parseTwilioTime(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC3339} {
		if t, err := time.Parse(layout, strings.TrimSpace(*s)); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
