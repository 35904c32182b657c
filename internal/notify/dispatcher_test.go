package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/vault-relay/internal/model"
)

// fakeDeliverer records deliveries and fails while err is set.
type fakeDeliverer struct {
	mu    sync.Mutex
	calls []string
	times []time.Time
	err   error
}

func (f *fakeDeliverer) Deliver(_ context.Context, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, content)
	f.times = append(f.times, time.Now())
	return f.err
}

func (f *fakeDeliverer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fill(side, coin, size string) model.FillEvent {
	return model.FillEvent{Side: model.Side(side), Coin: coin, Size: size}
}

func batchedConfig() Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeBatched
	cfg.FailurePolicy = PolicyDrop
	cfg.FlushInterval = 20 * time.Millisecond
	return cfg
}

func immediateConfig(pace time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeImmediate
	cfg.FailurePolicy = PolicyExit
	cfg.PaceInterval = pace
	return cfg
}

func TestNewDispatcher_DefaultPolicyFollowsMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want FailurePolicy
	}{
		{ModeBatched, PolicyDrop},
		{ModeImmediate, PolicyExit},
		{"", PolicyDrop},
	}

	for _, tt := range tests {
		d := NewDispatcher(Config{Mode: tt.mode}, &fakeDeliverer{}, nil, nil)
		if d.cfg.FailurePolicy != tt.want {
			t.Errorf("mode %q: FailurePolicy = %q, want %q", tt.mode, d.cfg.FailurePolicy, tt.want)
		}
	}
}

func TestDispatcher_BatchedJoinsLines(t *testing.T) {
	sink := &fakeDeliverer{}
	d := NewDispatcher(batchedConfig(), sink, nil, nil)

	err := d.HandleFills(context.Background(), []model.FillEvent{
		fill("A", "BTC", "1"),
		fill("B", "ETH", "2"),
	})
	if err != nil {
		t.Fatalf("HandleFills failed: %v", err)
	}
	if len(sink.Calls()) != 0 {
		t.Fatal("batched mode should not deliver before flush")
	}

	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	calls := sink.Calls()
	if len(calls) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(calls))
	}
	if calls[0] != "Long BTC 1\nShort ETH 2" {
		t.Errorf("content = %q, want %q", calls[0], "Long BTC 1\nShort ETH 2")
	}
	if d.Stats().Pending != 0 {
		t.Errorf("Pending = %d, want 0", d.Stats().Pending)
	}
}

func TestDispatcher_EmptyFlushNoCall(t *testing.T) {
	sink := &fakeDeliverer{}
	d := NewDispatcher(batchedConfig(), sink, nil, nil)

	for i := 0; i < 3; i++ {
		if err := d.Flush(context.Background()); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
	}

	if n := len(sink.Calls()); n != 0 {
		t.Errorf("deliveries = %d, want 0", n)
	}
	if d.Stats().Flushes != 0 {
		t.Errorf("Flushes = %d, want 0", d.Stats().Flushes)
	}
}

func TestDispatcher_BatchedRunFlushesOnTick(t *testing.T) {
	sink := &fakeDeliverer{}
	d := NewDispatcher(batchedConfig(), sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.HandleFills(ctx, []model.FillEvent{fill("A", "SOL", "10")})

	deadline := time.Now().Add(time.Second)
	for len(sink.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Idle ticks afterwards make no further calls.
	time.Sleep(100 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	calls := sink.Calls()
	if len(calls) != 1 || calls[0] != "Long SOL 10" {
		t.Errorf("calls = %q, want [\"Long SOL 10\"]", calls)
	}
}

func TestDispatcher_RunFinalFlush(t *testing.T) {
	sink := &fakeDeliverer{}
	cfg := batchedConfig()
	cfg.FlushInterval = time.Hour
	d := NewDispatcher(cfg, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.HandleFills(ctx, []model.FillEvent{fill("B", "ETH", "3")})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if calls := sink.Calls(); len(calls) != 1 || calls[0] != "Short ETH 3" {
		t.Errorf("calls = %q, want final flush", calls)
	}
}

func TestDispatcher_BatchedDropPolicy(t *testing.T) {
	sink := &fakeDeliverer{err: &DeliveryError{StatusCode: 500}}
	d := NewDispatcher(batchedConfig(), sink, nil, nil)

	d.HandleFills(context.Background(), []model.FillEvent{fill("A", "BTC", "1")})
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush under drop policy returned %v", err)
	}

	// Lost batch is not requeued.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	d.HandleFills(context.Background(), []model.FillEvent{fill("B", "ETH", "2")})
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	calls := sink.Calls()
	if len(calls) != 2 || calls[1] != "Short ETH 2" {
		t.Errorf("calls = %q", calls)
	}

	stats := d.Stats()
	if stats.Failed != 1 || stats.Delivered != 1 {
		t.Errorf("Stats = %+v, want 1 failed and 1 delivered", stats)
	}
}

func TestDispatcher_BatchedExitPolicy(t *testing.T) {
	sink := &fakeDeliverer{err: &DeliveryError{StatusCode: 404}}
	cfg := batchedConfig()
	cfg.FailurePolicy = PolicyExit
	d := NewDispatcher(cfg, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.HandleFills(ctx, []model.FillEvent{fill("A", "BTC", "1")})

	select {
	case err := <-runAsync(ctx, d):
		if !errors.Is(err, ErrFatalDelivery) {
			t.Errorf("Run error = %v, want ErrFatalDelivery", err)
		}
		var de *DeliveryError
		if !errors.As(err, &de) || de.StatusCode != 404 {
			t.Errorf("Run error = %v, want wrapped DeliveryError 404", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on fatal delivery")
	}
}

func runAsync(ctx context.Context, d *Dispatcher) <-chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return done
}

func TestDispatcher_ImmediateDeliversEachFill(t *testing.T) {
	sink := &fakeDeliverer{}
	d := NewDispatcher(immediateConfig(0), sink, nil, nil)

	err := d.HandleFills(context.Background(), []model.FillEvent{
		fill("A", "BTC", "1"),
		fill("B", "ETH", "2"),
		fill("Z", "SOL", "3"),
	})
	if err != nil {
		t.Fatalf("HandleFills failed: %v", err)
	}

	want := []string{"Long BTC 1", "Short ETH 2", "Unknown SOL 3"}
	calls := sink.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %q, want %q", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestDispatcher_ImmediatePacing(t *testing.T) {
	sink := &fakeDeliverer{}
	pace := 50 * time.Millisecond
	d := NewDispatcher(immediateConfig(pace), sink, nil, nil)

	d.HandleFills(context.Background(), []model.FillEvent{fill("A", "BTC", "1"), fill("A", "BTC", "2")})
	d.HandleFills(context.Background(), []model.FillEvent{fill("A", "BTC", "3")})

	sink.mu.Lock()
	times := append([]time.Time(nil), sink.times...)
	sink.mu.Unlock()

	if len(times) != 3 {
		t.Fatalf("deliveries = %d, want 3", len(times))
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < pace {
			t.Errorf("gap %d = %v, want >= %v", i, gap, pace)
		}
	}
}

func TestDispatcher_ImmediatePacingCanceled(t *testing.T) {
	sink := &fakeDeliverer{}
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	d := NewDispatcher(immediateConfig(time.Hour), sink, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	d.HandleFills(ctx, []model.FillEvent{fill("A", "BTC", "1")})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if err := d.HandleFills(ctx, []model.FillEvent{fill("A", "BTC", "2")}); err != nil {
		t.Errorf("HandleFills = %v, want nil on cancel", err)
	}
	if time.Since(start) > time.Second {
		t.Error("pacing wait ignored cancellation")
	}
	if n := len(sink.Calls()); n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
	if got := d.Stats().Abandoned; got != 1 {
		t.Errorf("Abandoned = %d, want 1", got)
	}
	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "message dropped") {
		t.Errorf("expected a warning for the dropped line, got:\n%s", out)
	}
	if !strings.Contains(out, "bytes=10") {
		t.Errorf("expected byte count of %q in log, got:\n%s", "Long BTC 2", out)
	}
}

func TestDispatcher_ImmediateExitPolicy(t *testing.T) {
	sink := &fakeDeliverer{err: errors.New("connection refused")}
	d := NewDispatcher(immediateConfig(0), sink, nil, nil)

	err := d.HandleFills(context.Background(), []model.FillEvent{fill("A", "BTC", "1"), fill("B", "ETH", "2")})
	if !errors.Is(err, ErrFatalDelivery) {
		t.Fatalf("HandleFills = %v, want ErrFatalDelivery", err)
	}
	if n := len(sink.Calls()); n != 1 {
		t.Errorf("deliveries = %d, want 1 (stop at first failure)", n)
	}
}

func TestDispatcher_ImmediateDropPolicy(t *testing.T) {
	sink := &fakeDeliverer{err: errors.New("connection refused")}
	cfg := immediateConfig(0)
	cfg.FailurePolicy = PolicyDrop
	d := NewDispatcher(cfg, sink, nil, nil)

	err := d.HandleFills(context.Background(), []model.FillEvent{fill("A", "BTC", "1"), fill("B", "ETH", "2")})
	if err != nil {
		t.Fatalf("HandleFills = %v, want nil", err)
	}
	if n := len(sink.Calls()); n != 2 {
		t.Errorf("deliveries = %d, want 2", n)
	}
}

func TestDispatcher_MinSize(t *testing.T) {
	sink := &fakeDeliverer{}
	cfg := batchedConfig()
	cfg.MinSize = decimal.RequireFromString("0.5")
	d := NewDispatcher(cfg, sink, nil, nil)

	d.HandleFills(context.Background(), []model.FillEvent{
		fill("A", "BTC", "0.1"),
		fill("B", "ETH", "0.5"),
		fill("A", "SOL", "-2"),
		fill("A", "DOGE", "garbage"),
	})
	d.Flush(context.Background())

	calls := sink.Calls()
	if len(calls) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(calls))
	}
	if want := "Short ETH 0.5\nLong SOL -2\nLong DOGE garbage"; calls[0] != want {
		t.Errorf("content = %q, want %q", calls[0], want)
	}
	if d.Stats().Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", d.Stats().Skipped)
	}
}

func TestDispatcher_SplitsLongBatches(t *testing.T) {
	sink := &fakeDeliverer{}
	cfg := batchedConfig()
	cfg.MaxLength = 22
	d := NewDispatcher(cfg, sink, nil, nil)

	d.HandleFills(context.Background(), []model.FillEvent{
		fill("A", "BTC", "1"),
		fill("B", "ETH", "2"),
		fill("A", "SOL", "3"),
	})
	d.Flush(context.Background())

	calls := sink.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %q, want 2 messages", calls)
	}
	if calls[0] != "Long BTC 1\nShort ETH 2" || calls[1] != "Long SOL 3" {
		t.Errorf("calls = %q", calls)
	}
}

// End to end through a real Sink: one fill, one POST within one flush.
func TestDispatcher_BatchedToWebhook(t *testing.T) {
	bodies := make(chan string, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := batchedConfig()
	cfg.FlushInterval = 50 * time.Millisecond
	d := NewDispatcher(cfg, NewSink(server.URL), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.HandleFills(ctx, []model.FillEvent{fill("A", "SOL", "10")})

	select {
	case body := <-bodies:
		if body != `{"content":"Long SOL 10"}` {
			t.Errorf("body = %s", body)
		}
	case <-time.After(time.Second):
		t.Fatal("no webhook POST within flush interval")
	}

	time.Sleep(150 * time.Millisecond)
	if n := len(bodies); n != 0 {
		t.Errorf("extra POSTs: %d", n)
	}
}
