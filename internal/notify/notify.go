// Package notify delivers signed run webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/jmylchreest/sitesift/internal/clock"
	"github.com/jmylchreest/sitesift/internal/models"
	"github.com/jmylchreest/sitesift/internal/version"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// maxAttempts bounds delivery; attempt n waits n*n seconds first.
const maxAttempts = 3

// Event is the webhook body.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      RunData   `json:"data"`
}

// RunData summarizes a finished run.
type RunData struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	Status         string `json:"status"`
	ChunkCount     int    `json:"chunk_count"`
	Sections       int    `json:"sections"`
	Failures       int    `json:"failures"`
	StoppedAt      int    `json:"stopped_at,omitempty"`
	CacheHits      int    `json:"cache_hits"`
	APICalls       int    `json:"api_calls"`
	ExportLocation string `json:"export_location,omitempty"`
	Error          string `json:"error,omitempty"`
}

// EventFor builds the event announcing run's outcome.
func EventFor(run *models.Run, at time.Time) Event {
	typ := EventRunCompleted
	if run.Status == models.RunStatusFailed {
		typ = EventRunFailed
	}
	return Event{
		Type:      typ,
		Timestamp: at.UTC(),
		Data: RunData{
			ID:             run.ID,
			URL:            run.URL,
			Status:         string(run.Status),
			ChunkCount:     run.ChunkCount,
			Sections:       run.Sections,
			Failures:       run.Failures,
			StoppedAt:      run.StoppedAt,
			CacheHits:      run.CacheHits,
			APICalls:       run.APICalls,
			ExportLocation: run.ExportLocation,
			Error:          run.Error,
		},
	}
}

// Error is a delivery that ended in a non-2xx response.
type Error struct {
	StatusCode int
}

func (e *Error) Error() string {
	return "webhook delivery failed with status: " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
}

// Notifier posts events to one URL. A nil *Notifier or one without a URL
// is disabled and Notify returns nil.
type Notifier struct {
	url    string
	signer *svix.Webhook
	client *http.Client
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Notifier. secret is a svix signing secret ("whsec_..."
// base64); without one, deliveries are unsigned.
func New(url, secret string, clk clock.Clock, logger *slog.Logger) (*Notifier, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		clock:  clk,
		logger: logger.With("component", "webhook"),
	}
	if secret != "" {
		wh, err := svix.NewWebhook(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook secret: %w", err)
		}
		n.signer = wh
	}
	return n, nil
}

// Enabled reports whether deliveries will be attempted.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Notify announces run's outcome.
func (n *Notifier) Notify(ctx context.Context, run *models.Run) error {
	if !n.Enabled() {
		return nil
	}
	return n.Send(ctx, EventFor(run, n.clock.Now()))
}

// Send delivers ev, retrying up to three times.
func (n *Notifier) Send(ctx context.Context, ev Event) error {
	if !n.Enabled() {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	msgID := "msg_" + ulid.Make().String()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := n.clock.Sleep(ctx, time.Duration(attempt*attempt)*time.Second); err != nil {
				return err
			}
		}

		lastErr = n.deliver(ctx, msgID, body)
		if lastErr == nil {
			n.logger.Info("webhook delivered", "url", n.url, "type", ev.Type, "run_id", ev.Data.ID)
			return nil
		}
		n.logger.Warn("webhook delivery failed", "url", n.url, "attempt", attempt+1, "error", lastErr)
	}

	n.logger.Error("webhook delivery failed after retries", "url", n.url, "error", lastErr)
	return lastErr
}

func (n *Notifier) deliver(ctx context.Context, msgID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sitesift-webhook/"+version.Get().Version)

	if n.signer != nil {
		ts := n.clock.Now()
		sig, err := n.signer.Sign(msgID, ts, body)
		if err != nil {
			return fmt.Errorf("sign webhook: %w", err)
		}
		req.Header.Set("svix-id", msgID)
		req.Header.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
		req.Header.Set("svix-signature", sig)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode}
	}
	return nil
}
