package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTime = time.Now()

	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "triggerx",
		Subsystem: "mirror",
		Name:      "uptime_seconds",
		Help:      "Time passed since the mirror node started in seconds",
	})

	// outcome=accepted/rejected, error_kind empty on accept
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerx",
		Subsystem: "mirror",
		Name:      "submissions_total",
		Help:      "Signed envelopes received",
	}, []string{"handler", "outcome", "error_kind"})

	ApplyDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triggerx",
		Subsystem: "mirror",
		Name:      "apply_duration_seconds",
		Help:      "Time from receipt to commit or rejection",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})

	LastTriggerID = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "triggerx",
		Subsystem: "mirror",
		Name:      "last_trigger_id",
		Help:      "Last applied trigger id",
	}, []string{"handler"})

	OperatorCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "triggerx",
		Subsystem: "mirror",
		Name:      "operator_count",
		Help:      "Operators in the mirrored set",
	}, []string{"handler"})

	HistoryWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerx",
		Subsystem: "mirror",
		Name:      "history_write_errors_total",
		Help:      "Submission log writes that failed",
	}, []string{"handler"})

	GoroutinesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "triggerx",
		Subsystem: "mirror",
		Name:      "goroutines_active",
		Help:      "Active Go routines",
	})
)

// StartMetricsCollection refreshes process gauges until ctx is done.
func StartMetricsCollection(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				UptimeSeconds.Set(time.Since(startTime).Seconds())
				GoroutinesActive.Set(float64(runtime.NumGoroutine()))
			}
		}
	}()
}
