// Package livestate loads the external cron runner's last-run telemetry and
// keeps a cached, periodically refreshed copy of it.
package livestate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"ops-dashboard/internal/schedule"
)

type runState struct {
	LastStatus        string   `json:"lastStatus"`
	LastRunAtMs       *float64 `json:"lastRunAtMs"`
	NextRunAtMs       *float64 `json:"nextRunAtMs"`
	LastDurationMs    *float64 `json:"lastDurationMs"`
	ConsecutiveErrors *int     `json:"consecutiveErrors"`
}

type rawJob struct {
	ID       string          `json:"id"`
	AgentID  string          `json:"agentId"`
	Name     string          `json:"name"`
	Schedule json.RawMessage `json:"schedule"`
	TZ       string          `json:"tz"`
	Enabled  *bool           `json:"enabled"`
	State    *runState       `json:"state"`
	runState
}

type rawSchedule struct {
	Kind string `json:"kind"`
	Expr string `json:"expr"`
	TZ   string `json:"tz"`
}

// Decode normalizes a cron-state document. The document is either a bare
// array of jobs or an object with a "jobs" array; anything else decodes to an
// empty list. Run fields may sit under "state" or directly on the job, and
// the schedule may be a plain expression or {kind, expr, tz}.
func Decode(data []byte) ([]schedule.LiveJobState, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []schedule.LiveJobState{}, nil
	}

	var entries []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, errors.Wrap(err, "decode cron state array")
		}
	case '{':
		var doc struct {
			Jobs json.RawMessage `json:"jobs"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(err, "decode cron state object")
		}
		if len(doc.Jobs) > 0 && doc.Jobs[0] == '[' {
			if err := json.Unmarshal(doc.Jobs, &entries); err != nil {
				return nil, errors.Wrap(err, "decode cron state jobs")
			}
		}
	default:
		if !json.Valid(data) {
			return nil, errors.New("cron state is not JSON")
		}
	}

	jobs := make([]schedule.LiveJobState, 0, len(entries))
	for i, entry := range entries {
		var raw rawJob
		// Non-object entries are kept as placeholders so numbering stays stable.
		_ = json.Unmarshal(entry, &raw)
		jobs = append(jobs, normalize(i, raw))
	}
	return jobs, nil
}

func normalize(i int, raw rawJob) schedule.LiveJobState {
	job := schedule.LiveJobState{
		ID:      raw.ID,
		AgentID: raw.AgentID,
		Name:    raw.Name,
		TZ:      raw.TZ,
		Enabled: true,
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", i+1)
	}
	if job.AgentID == "" {
		job.AgentID = "main"
	}
	if job.Name == "" {
		job.Name = fmt.Sprintf("Job %d", i+1)
	}
	if raw.Enabled != nil {
		job.Enabled = *raw.Enabled
	}

	if len(raw.Schedule) > 0 {
		var expr string
		var obj rawSchedule
		if json.Unmarshal(raw.Schedule, &expr) == nil {
			job.Schedule = strings.TrimSpace(expr)
		} else if json.Unmarshal(raw.Schedule, &obj) == nil {
			job.Schedule = strings.TrimSpace(obj.Expr)
			if obj.TZ != "" {
				job.TZ = obj.TZ
			}
		}
	}
	if job.TZ == "" {
		job.TZ = schedule.DisplayZone
	}

	nested := raw.State
	if nested == nil {
		nested = &runState{}
	}
	job.LastStatus = firstString(nested.LastStatus, raw.LastStatus, "unknown")
	job.LastRunAtMs = firstMillis(nested.LastRunAtMs, raw.runState.LastRunAtMs)
	job.NextRunAtMs = firstMillis(nested.NextRunAtMs, raw.runState.NextRunAtMs)
	job.LastDurationMs = firstMillis(nested.LastDurationMs, raw.runState.LastDurationMs)
	switch {
	case nested.ConsecutiveErrors != nil:
		job.ConsecutiveErrors = *nested.ConsecutiveErrors
	case raw.runState.ConsecutiveErrors != nil:
		job.ConsecutiveErrors = *raw.runState.ConsecutiveErrors
	}
	return job
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstMillis returns the first positive timestamp. Zero means "never".
func firstMillis(vals ...*float64) *int64 {
	for _, v := range vals {
		if v != nil && *v > 0 {
			ms := int64(*v)
			return &ms
		}
	}
	return nil
}
