// Package metrics exposes the controller's counters and a tiny health
// surface. The listener is optional; the controller runs headless without
// it.
package metrics

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Tunes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrocast_tunes_total",
		Help: "Station tunes by dispatch route (epg, weather, mtv, youtube, signoff, scheduled, epoch, snow).",
	}, []string{"route"})

	Interstitials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrocast_interstitials_total",
		Help: "Interstitial clips played, by kind (bumper, commercial, countdown).",
	}, []string{"kind"})

	AlertsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrocast_eas_alerts_total",
		Help: "EAS alert videos played to completion or override.",
	})

	IPCErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrocast_ipc_errors_total",
		Help: "Player IPC calls that failed and degraded to no-ops.",
	})

	CurrentChannel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retrocast_current_channel",
		Help: "Channel number currently tuned.",
	})

	EASActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retrocast_eas_active",
		Help: "1 while the alert runner owns playback.",
	})
)

// Serve starts the /metrics + /healthz listener. Errors are logged, not
// fatal; metrics are a convenience, not a dependency.
func Serve(addr string, started time.Time) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok up=%s\n", time.Since(started).Round(time.Second))
	})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics: %v", err)
		}
	}()
}
