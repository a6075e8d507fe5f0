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
		Subsystem: "syncer",
		Name:      "uptime_seconds",
		Help:      "Time passed since the syncer started in seconds",
	})

	// trigger=block/cron/manual
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerx",
		Subsystem: "syncer",
		Name:      "cycles_total",
		Help:      "Sync cycles run",
	}, []string{"trigger"})

	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "triggerx",
		Subsystem: "syncer",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one sync cycle",
		Buckets:   prometheus.DefBuckets,
	})

	SourceReadErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerx",
		Subsystem: "syncer",
		Name:      "source_read_errors_total",
		Help:      "Source chain reads that failed after retries",
	}, []string{"op"})

	// result=no_drift/accepted/rejected/error
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerx",
		Subsystem: "syncer",
		Name:      "updates_total",
		Help:      "Drift checks per destination by result",
	}, []string{"destination", "result"})

	LastTriggerID = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "triggerx",
		Subsystem: "syncer",
		Name:      "last_trigger_id",
		Help:      "Last trigger id accepted by a destination",
	}, []string{"destination"})

	LastSourceBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "triggerx",
		Subsystem: "syncer",
		Name:      "last_source_block",
		Help:      "Source block of the latest snapshot",
	})

	GoroutinesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "triggerx",
		Subsystem: "syncer",
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
