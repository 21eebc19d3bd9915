// Package webhook notifies an external endpoint when a source refresh or an
// index rebuild finishes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event types.
const (
	EventRefreshCompleted = "refresh.completed"
	EventRefreshFailed    = "refresh.failed"
	EventIndexRebuilt     = "index.rebuilt"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const SignatureHeader = "X-Uniassist-Signature"

// Event is the JSON body posted to the endpoint.
type Event struct {
	Type      string `json:"type"`
	SourceID  string `json:"source_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, sourceID string, data any) *Event {
	return &Event{Type: typ, SourceID: sourceID, Timestamp: time.Now().Unix(), Data: data}
}

// Sign returns the SignatureHeader value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier posts events to one endpoint.
type Notifier struct {
	URL    string
	Secret string

	// Backoff lists the waits before each attempt of Notify; its length is
	// the attempt count.
	Backoff []time.Duration

	client *http.Client
	log    *slog.Logger
}

// NewNotifier returns a Notifier that tries four times: immediately, then
// after 1s, 5s and 30s. It returns nil when url is empty.
func NewNotifier(url, secret string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		URL:     url,
		Secret:  secret,
		Backoff: []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second},
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     slog.Default(),
	}
}

// Send makes a single delivery attempt.
func (n *Notifier) Send(ctx context.Context, ev *Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", ev.Type, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Uniassist-Webhook/1.0")
	if n.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.Secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s: %w", ev.Type, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: %s rejected with status %d", ev.Type, resp.StatusCode)
	}
	return nil
}

// Notify delivers ev in the background following Backoff. The returned
// channel is closed once the event is delivered or every attempt failed.
// A nil Notifier drops the event.
func (n *Notifier) Notify(ev *Event) <-chan struct{} {
	done := make(chan struct{})
	if n == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		log := n.log.With("url", n.URL, "event", ev.Type, "source_id", ev.SourceID)
		for i, wait := range n.Backoff {
			time.Sleep(wait)
			ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
			err := n.Send(ctx, ev)
			cancel()
			if err == nil {
				log.Info("webhook: delivered", "attempt", i+1)
				return
			}
			log.Warn("webhook: attempt failed", "attempt", i+1, "error", err)
		}
		log.Error("webhook: giving up", "attempts", len(n.Backoff))
	}()
	return done
}
