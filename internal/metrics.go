package internal

import (
	"sync"

	"github.com/prologic/observe"
)

var (
	metrics     *observe.Metrics
	metricsOnce sync.Once
)

// setupMetrics registers the process wide metrics exactly once. The
// underlying collectors are registered globally so a second registration
// would panic.
func setupMetrics() {
	metricsOnce.Do(func() {
		metrics = observe.NewMetrics("conductor")

		metrics.NewCounter("tasks", "dispatched", "Number of tasks accepted by the dispatcher")
		metrics.NewCounter("tasks", "rejected", "Number of tasks rejected because the queue was full")
		metrics.NewCounter("tasks", "executing", "Number of tasks that entered the executing state")
		metrics.NewCounter("tasks", "finished", "Number of tasks that entered the finished state")
		metrics.NewCounter("tasks", "failed", "Number of tasks that finished with an error")
		metrics.NewSummary("tasks", "duration_seconds", "Time spent executing tasks")

		metrics.NewGauge("dispatcher", "workers", "Number of dispatcher workers")
		metrics.NewGauge("dispatcher", "queued", "Number of tasks waiting in the queue")
		metrics.NewGauge("dispatcher", "running", "Number of tasks currently executing")

		metrics.NewCounter("archive", "size", "Number of results archived")
		metrics.NewCounter("archive", "error", "Number of results that failed to archive")

		metrics.NewCounter("jobs", "runs", "Number of cron job runs")
	})
}
