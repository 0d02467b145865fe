package telephony

import (
	"context"
	"net/http"
	"time"

	"call-assistant/internal/calls"
	"call-assistant/internal/events"
	"call-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallReleaser frees per-call resources once a call has ended.
type CallReleaser interface {
	ReleaseCall(ctx context.Context, callID string)
}

// StatusWebhookHandler ingests provider status callbacks.
//
// It records the observation in the call cache, relays it as an event and frees the concurrency slot
// on terminal statuses. It always answers 200 "OK" so the provider never retries a logged callback.
type StatusWebhookHandler struct {
	Calls  calls.Repository
	Events *events.Emitter
	// Releaser is optional; set when outbound calls are capped.
	Releaser CallReleaser

	Now func() time.Time
}

func (h StatusWebhookHandler) HandleCallStatus(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Now == nil {
		h.Now = time.Now
	}

	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.String(http.StatusOK, "OK")
		return
	}
	log.Info("call status update",
		"call_id", form.CallSid,
		"status", form.CallStatus,
		"duration", form.CallDuration,
		"price", form.CallPrice,
	)
	if form.CallSid == "" {
		log.Warn("status callback without call id", "err", ErrMissingCallSid)
		c.String(http.StatusOK, "OK")
		return
	}

	ctx := c.Request.Context()
	update := form.ToCall(h.Now())
	observed := update
	if h.Calls != nil {
		merged, err := h.Calls.Upsert(ctx, update)
		if err != nil {
			log.Error("call cache update failed", "call_id", form.CallSid, "err", err)
		} else {
			observed = merged
		}
	}

	h.Events.Emit(ctx, form.CallSid, "status", observed.Observed())

	if h.Releaser != nil && update.Status.Terminal() {
		h.Releaser.ReleaseCall(ctx, form.CallSid)
	}
	c.String(http.StatusOK, "OK")
}
