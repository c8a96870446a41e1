package metrics

import (
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

// RenewalCompleted records a successful renewal sweep and its outcomes
func RenewalCompleted(summary domain.RenewalSummary, duration time.Duration) {
	RenewalRunsTotal.WithLabelValues("completed").Inc()
	RenewalRunDuration.Observe(duration.Seconds())
	RenewalOutcomesTotal.WithLabelValues("renewed").Add(float64(summary.Renewed))
	RenewalOutcomesTotal.WithLabelValues("failed").Add(float64(summary.Failed))
	RenewalOutcomesTotal.WithLabelValues("expired").Add(float64(summary.Expired))
	RenewalOutcomesTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))
}

// RenewalFailed records a renewal sweep that stopped on an error
func RenewalFailed() {
	RenewalRunsTotal.WithLabelValues("failed").Inc()
}
