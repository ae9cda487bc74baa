// Package webhook delivers committed-event notifications as HTTP POSTs.
// Destinations take the form "webhook:https://example.com/events"; the
// target URL is everything after the colon.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-behave"
)

// Publisher posts each notification's payload to the URL in its destination.
type Publisher struct {
	headers map[string]string
	client  *http.Client
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithHTTPClient swaps in a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(wh *Publisher) {
		wh.client = client
	}
}

// WithTimeout bounds each POST. It applies to the current client, so place
// it after WithHTTPClient when both are given.
func WithTimeout(d time.Duration) Option {
	return func(wh *Publisher) {
		wh.client.Timeout = d
	}
}

// WithDefaultHeaders merges headers into the set sent with every request.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(wh *Publisher) {
		for name, val := range headers {
			wh.headers[name] = val
		}
	}
}

// New builds a Publisher posting JSON with a 30s timeout unless configured
// otherwise.
func New(opts ...Option) *Publisher {
	wh := &Publisher{
		headers: map[string]string{"Content-Type": "application/json"},
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(wh)
	}
	return wh
}

// Destination names the prefix this publisher claims in routes.
func (wh *Publisher) Destination() string {
	return "webhook"
}

// Publish sends each notification as an HTTP POST to the URL named in its
// destination. The body is the serialized event; notification headers are
// forwarded with an "X-Behave-" prefix. The first failure stops the batch.
func (wh *Publisher) Publish(ctx context.Context, notes []*behave.Notification) error {
	for _, note := range notes {
		if err := wh.post(ctx, note); err != nil {
			return err
		}
	}
	return nil
}

func (wh *Publisher) post(ctx context.Context, note *behave.Notification) error {
	url := urlOf(note.Destination)
	if url == "" {
		return fmt.Errorf("webhook: invalid destination %q: missing URL", note.Destination)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(note.Payload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	for name, val := range wh.headers {
		req.Header.Set(name, val)
	}
	// Prefixed so notification headers never collide with the defaults.
	for name, val := range note.Headers {
		req.Header.Set("X-Behave-"+name, val)
	}

	resp, err := wh.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed for %s: %w", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook: server error %d from %s", resp.StatusCode, url)
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook: client error %d from %s", resp.StatusCode, url)
	}
	return nil
}

// urlOf strips the "webhook:" prefix from a destination. Anything else
// yields "".
func urlOf(destination string) string {
	url, ok := strings.CutPrefix(destination, "webhook:")
	if !ok {
		return ""
	}
	return url
}

var _ behave.Publisher = (*Publisher)(nil)
