package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnalyticsKPIWarmup fills the dashboard cache ahead of the morning traffic.
	TaskAnalyticsKPIWarmup = "analytics:kpi_warmup"
	// TaskAnalyticsCacheBump invalidates every cached dashboard result.
	TaskAnalyticsCacheBump = "analytics:cache_bump"
)

// KPIWarmupPayload selects the year to warm. Zero means the configured
// default year. PerPharmacy also warms each pharmacy scope.
type KPIWarmupPayload struct {
	Year        int  `json:"year"`
	PerPharmacy bool `json:"per_pharmacy"`
}

// NewKPIWarmupTask constructs an Asynq task.
func NewKPIWarmupTask(payload KPIWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsKPIWarmup, data), nil
}

// CacheBumpPayload carries the source that requested the invalidation.
type CacheBumpPayload struct {
	Source string `json:"source"`
}

// NewCacheBumpTask constructs an Asynq task.
func NewCacheBumpTask(source string) (*asynq.Task, error) {
	data, err := json.Marshal(CacheBumpPayload{Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsCacheBump, data), nil
}
