package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun returns the first activation of def strictly after after, as
// computed by a full cron engine in the job's zone. Expressions the engine
// rejects return nil.
func NextRun(def JobDefinition, after time.Time, jobLoc *time.Location) *time.Time {
	sched, err := standardParser.Parse(def.Schedule)
	if err != nil {
		return nil
	}
	if jobLoc == nil {
		jobLoc = after.Location()
	}
	next := sched.Next(after.In(jobLoc))
	if next.IsZero() {
		return nil
	}
	next = next.In(after.Location())
	return &next
}

// ValidExpr reports whether a full cron engine accepts spec.
func ValidExpr(spec string) bool {
	_, err := standardParser.Parse(spec)
	return err == nil
}
