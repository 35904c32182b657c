package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/vault-relay/internal/model"
)

const testVault = "0xdfc24b077bc1425ad1dea75bcb6f8158e10df303"

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com/info")

		if c.infoURL != "https://api.example.com/info" {
			t.Errorf("infoURL = %q, want %q", c.infoURL, "https://api.example.com/info")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
		if !strings.HasPrefix(c.userAgent, "vault-relay/") {
			t.Errorf("userAgent = %q, want vault-relay/ prefix", c.userAgent)
		}
	})

	t.Run("with multiple options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://api.example.com/info",
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 10)
		}
		if c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 500*time.Millisecond)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.example.com/info", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 422, Message: "Unprocessable Entity"}
	if err.Error() != "info api error 422: Unprocessable Entity" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{500, true},
		{502, true},
		{503, true},
		{429, true},
		{400, false},
		{404, false},
		{422, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.expected {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestResolveChildAccounts(t *testing.T) {
	t.Run("returns children in order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("Method = %s, want POST", r.Method)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
			}

			var req map[string]string
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &req); err != nil {
				t.Fatalf("bad request body %s: %v", body, err)
			}
			if req["type"] != "vaultDetails" {
				t.Errorf("type = %q, want vaultDetails", req["type"])
			}
			if req["vaultAddress"] != testVault {
				t.Errorf("vaultAddress = %q, want %q", req["vaultAddress"], testVault)
			}

			w.Write([]byte(`{
				"name": "HLP",
				"vaultAddress": "` + testVault + `",
				"relationship": {
					"type": "parent",
					"data": {"childAddresses": [
						"0x010461c14e146ac35fe42271bdc1134ee31c703a",
						"0x31ca8395cf837de08b24da3f660e77761dfb974b"
					]}
				}
			}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(0, time.Millisecond))
		accounts, err := c.ResolveChildAccounts(context.Background(), testVault)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(accounts) != 2 {
			t.Fatalf("len(accounts) = %d, want 2", len(accounts))
		}
		if model.WireAccount(accounts[0]) != "0x010461c14e146ac35fe42271bdc1134ee31c703a" {
			t.Errorf("accounts[0] = %s", model.WireAccount(accounts[0]))
		}
		if model.WireAccount(accounts[1]) != "0x31ca8395cf837de08b24da3f660e77761dfb974b" {
			t.Errorf("accounts[1] = %s", model.WireAccount(accounts[1]))
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"relationship": `))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(0, time.Millisecond))
		_, err := c.ResolveChildAccounts(context.Background(), testVault)

		var resErr *ResolutionError
		if !errors.As(err, &resErr) {
			t.Fatalf("error = %v, want *ResolutionError", err)
		}
		if resErr.Vault != testVault {
			t.Errorf("Vault = %q, want %q", resErr.Vault, testVault)
		}
	})

	t.Run("no relationship", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"name": "solo", "relationship": {"type": "normal", "data": {}}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(0, time.Millisecond))
		_, err := c.ResolveChildAccounts(context.Background(), testVault)
		if !errors.Is(err, ErrNoChildAccounts) {
			t.Errorf("error = %v, want ErrNoChildAccounts", err)
		}
	})

	t.Run("invalid child address", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"relationship": {"data": {"childAddresses": ["0xnothex"]}}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(0, time.Millisecond))
		_, err := c.ResolveChildAccounts(context.Background(), testVault)

		var resErr *ResolutionError
		if !errors.As(err, &resErr) {
			t.Fatalf("error = %v, want *ResolutionError", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := NewClient(url, WithRetries(0, time.Millisecond))
		_, err := c.ResolveChildAccounts(context.Background(), testVault)

		var resErr *ResolutionError
		if !errors.As(err, &resErr) {
			t.Fatalf("error = %v, want *ResolutionError", err)
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, time.Millisecond))
		body, err := c.doWithRetry(context.Background(), []byte(`{}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q", body)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, time.Millisecond))
		_, err := c.doWithRetry(context.Background(), []byte(`{}`))

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *APIError", err)
		}
		if apiErr.StatusCode != http.StatusBadRequest {
			t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(2, time.Millisecond))
		_, err := c.doWithRetry(context.Background(), []byte(`{}`))
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error = %v, want max retries exceeded", err)
		}
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		c := NewClient(server.URL, WithRetries(5, time.Hour))

		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := c.doWithRetry(ctx, []byte(`{}`))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}
