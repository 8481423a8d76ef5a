package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finopskit/kosten/telemetry"
	"github.com/finopskit/kosten/types"
)

// healthResponse is the operator-facing health surface.
type healthResponse struct {
	Status        string                   `json:"status"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	SyncCycles    int64                    `json:"sync_cycles"`
	Connections   []types.ConnectionHealth `json:"connections"`
}

func (d *Daemon) httpServer() *http.Server {
	mux := http.NewServeMux()

	if telemetry.PrometheusRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			telemetry.PrometheusRegistry,
			promhttp.HandlerOpts{},
		))
	}
	mux.HandleFunc("/healthz", d.handleHealth)

	return &http.Server{
		Addr:              d.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// handleHealth reports overall and per-connection health. Overall is
// degraded when any connection is.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	connections, err := d.store.ListHealth()
	if err != nil {
		http.Error(w, "health lookup failed", http.StatusInternalServerError)
		return
	}

	status := string(types.ConnectionHealthy)
	code := http.StatusOK
	for _, conn := range connections {
		if conn.Status == types.ConnectionDegraded {
			status = string(types.ConnectionDegraded)
			code = http.StatusServiceUnavailable
			break
		}
	}

	resp := healthResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
		SyncCycles:    d.syncCount.Load(),
		Connections:   connections,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
