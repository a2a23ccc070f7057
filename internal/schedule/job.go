package schedule

import "time"

// DisplayZone is the canonical operating timezone the catalog is written against.
const DisplayZone = "Asia/Taipei"

type Category string

const (
	CategoryTrading    Category = "trading"
	CategoryContent    Category = "content"
	CategoryMonitoring Category = "monitoring"
	CategoryOther      Category = "other"
)

// JobDefinition is one entry of the static job catalog.
type JobDefinition struct {
	ID          string   `json:"id"`
	AgentID     string   `json:"agent_id"`
	Name        string   `json:"name"`
	Schedule    string   `json:"schedule"` // minute hour day-of-month month day-of-week
	TZ          string   `json:"tz"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// LiveJobState is the last-run telemetry reported by the external cron runner.
// It is matched to a JobDefinition by Reconcile.
type LiveJobState struct {
	ID                string `json:"id"`
	AgentID           string `json:"agent_id"`
	Name              string `json:"name"`
	Schedule          string `json:"schedule"`
	TZ                string `json:"tz"`
	Enabled           bool   `json:"enabled"`
	LastRunAtMs       *int64 `json:"last_run_at_ms,omitempty"`
	NextRunAtMs       *int64 `json:"next_run_at_ms,omitempty"`
	LastStatus        string `json:"last_status"`
	LastDurationMs    *int64 `json:"last_duration_ms,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors"`
}

// LastRunAt returns the last run time, or nil when the job never ran.
func (s *LiveJobState) LastRunAt() *time.Time {
	if s == nil || s.LastRunAtMs == nil || *s.LastRunAtMs <= 0 {
		return nil
	}
	t := time.UnixMilli(*s.LastRunAtMs)
	return &t
}

// NextRunAt returns the next run time reported by the runner, if any.
func (s *LiveJobState) NextRunAt() *time.Time {
	if s == nil || s.NextRunAtMs == nil || *s.NextRunAtMs <= 0 {
		return nil
	}
	t := time.UnixMilli(*s.NextRunAtMs)
	return &t
}
