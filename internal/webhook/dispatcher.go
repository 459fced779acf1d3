// Package webhook delivers execution lifecycle notifications to outbound
// HTTP targets and tracks per-webhook delivery health.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fleetops/fleet-tasks/internal/db"
)

// Source identifies this service in outbound payloads.
const Source = "fleet-tasks"

// DeliveryResult is the outcome of a single delivery attempt.
type DeliveryResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher sends notifications and records delivery outcomes. Delivery
// never retries internally: a failing webhook accumulates failure_count until
// it is fixed or disabled.
type Dispatcher struct {
	store   *db.DB
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher with a bounded delivery timeout and an
// outbound rate cap shared across all webhooks.
func NewDispatcher(store *db.DB, log zerolog.Logger, timeout time.Duration, ratePerSec int) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log.With().Str("component", "webhook").Logger(),
	}
}

// Notify delivers one event to one webhook and updates its delivery counters.
func (d *Dispatcher) Notify(w *db.Webhook, event Event) DeliveryResult {
	res := d.deliver(w, event)
	d.recordOutcome(w, res)
	return res
}

// Dispatch fans an event out to every enabled webhook subscribed to it whose
// machine scope matches. Returns the ids of the webhooks that were fired.
func (d *Dispatcher) Dispatch(event Event) []string {
	enabled := true
	hooks, err := d.store.ListWebhooks(db.WebhookFilter{Enabled: &enabled})
	if err != nil {
		d.log.Error().Err(err).Msg("listing webhooks for dispatch")
		return nil
	}

	var fired []string
	for _, w := range hooks {
		if !w.Subscribed(event.Event) || !w.InScope(event.MachineID) {
			continue
		}
		res := d.Notify(w, event)
		fired = append(fired, w.ID)
		if !res.Success {
			d.log.Warn().
				Str("webhook_id", w.ID).
				Str("event", string(event.Event)).
				Str("error", res.Error).
				Msg("webhook delivery failed")
		}
	}
	return fired
}

// Test fires a synthetic test_notification through the normal delivery path.
// It affects webhook health counters but never the execution audit trail.
func (d *Dispatcher) Test(w *db.Webhook) DeliveryResult {
	event := Event{
		Event:     "test_notification",
		Timestamp: time.Now().UTC(),
		Source:    Source,
		TaskName:  w.Name,
		Summary:   fmt.Sprintf("Test notification for webhook %q", w.Name),
	}
	res := d.deliver(w, event)
	d.recordOutcome(w, res)
	return res
}

func (d *Dispatcher) deliver(w *db.Webhook, event Event) DeliveryResult {
	builder, err := builderFor(w.WebhookType)
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	body, err := builder.Build(event)
	if err != nil {
		return DeliveryResult{Error: fmt.Sprintf("building payload: %v", err)}
	}

	_ = d.limiter.Wait(context.Background())

	req, err := http.NewRequest(http.MethodPost, w.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{Error: fmt.Sprintf("creating request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DeliveryResult{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("webhook returned status %d", resp.StatusCode),
		}
	}
	return DeliveryResult{Success: true, StatusCode: resp.StatusCode}
}

func (d *Dispatcher) recordOutcome(w *db.Webhook, res DeliveryResult) {
	if res.Success {
		if err := d.store.RecordDeliverySuccess(w.ID, time.Now().UTC()); err != nil {
			d.log.Error().Err(err).Str("webhook_id", w.ID).Msg("recording delivery success")
		}
		return
	}
	if err := d.store.RecordDeliveryFailure(w.ID); err != nil {
		d.log.Error().Err(err).Str("webhook_id", w.ID).Msg("recording delivery failure")
	}
}

// MaskURL hides a webhook URL for read responses, keeping the last 8
// characters for recognition.
func MaskURL(url string) string {
	const keep = 8
	if len(url) <= keep {
		return "********"
	}
	return "********" + url[len(url)-keep:]
}
