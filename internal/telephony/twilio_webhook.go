package telephony

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"call-assistant/internal/calls"
)

// StatusCallback captures the call status webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded; relays and tests may post JSON with the same keys.
type StatusCallback struct {
	CallSid       string `json:"CallSid"`
	AccountSid    string `json:"AccountSid,omitempty"`
	CallStatus    string `json:"CallStatus"`
	CallDuration  string `json:"CallDuration,omitempty"`
	CallStartTime string `json:"CallStartTime,omitempty"`
	CallEndTime   string `json:"CallEndTime,omitempty"`
	CallPrice     string `json:"CallPrice,omitempty"`
	PriceUnit     string `json:"PriceUnit,omitempty"`
	To            string `json:"To,omitempty"`
	From          string `json:"From,omitempty"`
	Timestamp     string `json:"Timestamp,omitempty"`
}

var ErrMissingCallSid = errors.New("telephony: CallSid missing")

// ParseStatusCallback reads a form or JSON body.
func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var f StatusCallback
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&f); err != nil {
			return StatusCallback{}, err
		}
		return f.normalized(), nil
	}

	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	f := StatusCallback{
		CallSid:       r.PostFormValue("CallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallDuration:  r.PostFormValue("CallDuration"),
		CallStartTime: r.PostFormValue("CallStartTime"),
		CallEndTime:   r.PostFormValue("CallEndTime"),
		CallPrice:     r.PostFormValue("CallPrice"),
		PriceUnit:     r.PostFormValue("PriceUnit"),
		To:            r.PostFormValue("To"),
		From:          r.PostFormValue("From"),
		Timestamp:     r.PostFormValue("Timestamp"),
	}
	return f.normalized(), nil
}

func (f StatusCallback) normalized() StatusCallback {
	f.CallSid = strings.TrimSpace(f.CallSid)
	f.CallStatus = strings.ToLower(strings.TrimSpace(f.CallStatus))
	f.To = strings.TrimSpace(f.To)
	f.From = strings.TrimSpace(f.From)
	return f
}

// ToCall converts the callback into a partial snapshot suitable for calls.Call.Merge.
func (f StatusCallback) ToCall(receivedAt time.Time) calls.Call {
	c := calls.Call{
		ID:        f.CallSid,
		To:        f.To,
		From:      f.From,
		Status:    calls.CallStatus(f.CallStatus),
		Duration:  parseOptionalInt(nonEmpty(f.CallDuration)),
		Price:     nonEmpty(f.CallPrice),
		PriceUnit: f.PriceUnit,
		StartTime: parseTwilioTime(nonEmpty(f.CallStartTime)),
		EndTime:   parseTwilioTime(nonEmpty(f.CallEndTime)),
		UpdatedAt: receivedAt.UTC(),
	}
	if t := parseTwilioTime(nonEmpty(f.Timestamp)); t != nil {
		c.UpdatedAt = *t
	}
	return c
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
