package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/vault-relay/internal/connection"
	"github.com/rickgao/vault-relay/internal/ingest"
	"github.com/rickgao/vault-relay/internal/metrics"
	"github.com/rickgao/vault-relay/internal/notify"
	"github.com/rickgao/vault-relay/internal/subscription"
	"github.com/rickgao/vault-relay/internal/version"
)

// healthSources supplies the component stats reported by /health.
type healthSources struct {
	stream        func() connection.SourceStats
	subscriptions func() subscription.Stats
	ingest        func() ingest.Stats
	dispatcher    func() notify.Stats
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(src healthSources, m *metrics.Metrics, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Version,
			Components: make(map[string]any),
		}

		stream := src.stream()
		health.Components["stream"] = map[string]any{
			"connected":     stream.Connected,
			"subscriptions": stream.Subscriptions,
			"reconnects":    stream.Reconnects,
		}
		if !stream.Connected {
			health.Status = "degraded"
		}

		subs := src.subscriptions()
		health.Components["subscriptions"] = map[string]any{
			"active": subs.Active,
			"failed": subs.Failed,
			"cycles": subs.Cycles,
		}
		if subs.Failed > 0 {
			health.Status = "degraded"
		}
		if subs.Active == 0 {
			health.Status = "unhealthy"
		}

		health.Components["ingest"] = src.ingest()
		health.Components["dispatcher"] = src.dispatcher()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle(metricsPath, m.Handler())

	return mux
}
