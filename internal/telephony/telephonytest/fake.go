// Package telephonytest provides an in-memory telephony.Provider for tests.
package telephonytest

import (
	"context"
	"sync"

	"call-assistant/internal/apperr"
	"call-assistant/internal/calls"
	"call-assistant/internal/telephony"
)

// Provider is a scripted fake. Zero value is usable; set fields to steer results.
type Provider struct {
	mu sync.Mutex

	Placed     telephony.PlacedCall
	PlaceErr   error
	Calls      map[string]calls.Call
	Recordings map[string][]calls.Recording
	Audio      []byte

	PlaceRequests []telephony.PlaceCallRequest
	ListRequests  []telephony.ListCallsRequest
	StatusLookups int
}

var _ telephony.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{Calls: map[string]calls.Call{}, Recordings: map[string][]calls.Recording{}}
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) PlaceCall(_ context.Context, req telephony.PlaceCallRequest) (telephony.PlacedCall, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlaceRequests = append(p.PlaceRequests, req)
	if p.PlaceErr != nil {
		return telephony.PlacedCall{}, p.PlaceErr
	}
	if p.Calls != nil && p.Placed.ID != "" {
		p.Calls[p.Placed.ID] = calls.Call{ID: p.Placed.ID, To: p.Placed.To, From: p.Placed.From, Status: p.Placed.Status}
	}
	return p.Placed, nil
}

func (p *Provider) GetCallStatus(_ context.Context, callID string) (calls.Call, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StatusLookups++
	c, ok := p.Calls[callID]
	if !ok {
		return calls.Call{}, apperr.New(apperr.KindProvider, "Twilio error: The requested resource /Calls/%s.json was not found", callID)
	}
	return c.Observed(), nil
}

func (p *Provider) ListCalls(_ context.Context, req telephony.ListCallsRequest) ([]calls.Call, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListRequests = append(p.ListRequests, req)
	var out []calls.Call
	for _, c := range p.Calls {
		if req.Status != "" && c.Status != req.Status {
			continue
		}
		out = append(out, c.Observed())
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (p *Provider) CancelCall(_ context.Context, callID string) (calls.Call, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.Calls[callID]
	if !ok {
		return calls.Call{}, apperr.New(apperr.KindProvider, "Twilio error: call %s not found", callID)
	}
	if c.Status.Terminal() {
		return calls.Call{}, apperr.New(apperr.KindCallEnded, "Call %s has already ended (status: %s)", callID, c.Status)
	}
	if c.Status == calls.CallStatusInProgress {
		c.Status = calls.CallStatusCompleted
	} else {
		c.Status = calls.CallStatusCanceled
	}
	p.Calls[callID] = c
	return c.Observed(), nil
}

func (p *Provider) StartRecording(_ context.Context, req telephony.StartRecordingRequest) (calls.Recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := calls.Recording{
		ID:       "RE" + req.CallID,
		CallID:   req.CallID,
		Status:   calls.RecordingStatusRecording,
		Channels: req.Channels,
	}
	p.Recordings[req.CallID] = append(p.Recordings[req.CallID], rec)
	return rec, nil
}

func (p *Provider) StopRecording(_ context.Context, callID string) (calls.Recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	recs := p.Recordings[callID]
	for i := range recs {
		if recs[i].Status == calls.RecordingStatusRecording {
			recs[i].Status = calls.RecordingStatusStopped
			d := 7
			recs[i].Duration = &d
			recs[i].URL = "https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/" + recs[i].ID
			return recs[i], nil
		}
	}
	return calls.Recording{}, apperr.New(apperr.KindNoActiveRecording, "No active recording found for call %s", callID)
}

func (p *Provider) LatestRecording(_ context.Context, callID string) (calls.Recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	recs := p.Recordings[callID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Status == calls.RecordingStatusCompleted {
			return recs[i], nil
		}
	}
	return calls.Recording{}, apperr.New(apperr.KindNotFound, "No completed recording for call %s", callID)
}

func (p *Provider) FetchRecordingAudio(_ context.Context, rec calls.Recording) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Audio, nil
}
