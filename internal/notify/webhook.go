package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/vault-relay/internal/version"
)

// DeliveryError is a failed webhook POST. StatusCode is zero for transport
// failures.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook delivery failed: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("webhook delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// webhookPayload is the body of every webhook POST.
type webhookPayload struct {
	Content string `json:"content"`
}

// Sink posts messages to a chat webhook.
type Sink struct {
	url        string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// NewSink creates a Sink posting to url.
func NewSink(url string, opts ...SinkOption) *Sink {
	s := &Sink{
		url:       url,
		userAgent: version.UserAgent(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithSinkTimeout sets the HTTP client timeout.
func WithSinkTimeout(d time.Duration) SinkOption {
	return func(s *Sink) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// WithSinkHTTPClient sets a custom HTTP client.
func WithSinkHTTPClient(hc *http.Client) SinkOption {
	return func(s *Sink) {
		s.httpClient = hc
	}
}

// WithSinkLogger sets the logger.
func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Deliver POSTs {"content": content}. Any 2xx status is success.
func (s *Sink) Deliver(ctx context.Context, content string) error {
	body, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	// Drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body)

	s.logger.Debug("webhook delivered", "status", resp.StatusCode, "bytes", len(body))
	return nil
}
