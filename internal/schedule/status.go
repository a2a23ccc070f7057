package schedule

import (
	"strings"
	"time"
)

type Status string

const (
	StatusSkipped       Status = "skipped"
	StatusPending       Status = "pending"
	StatusUnknown       Status = "unknown"
	StatusOK            Status = "ok"
	StatusError         Status = "error"
	StatusNotApplicable Status = "n/a"
)

// DefaultBenignFailures are lastStatus fragments reported when the job itself
// finished but a downstream notification step failed.
var DefaultBenignFailures = []string{
	"send failed",
	"thread not found",
	"chat not found",
	"delivery failed",
	"message is too long",
}

// IsBenign reports whether status contains one of the allow-listed fragments.
func IsBenign(status string, benign []string) bool {
	s := strings.ToLower(status)
	for _, frag := range benign {
		if frag != "" && strings.Contains(s, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}

// Classify derives the display status of slot on the calendar date of day in
// loc, the display timezone, evaluated at now. The slot's hour and minute are
// read in jobLoc. A date the slot never lands on is skipped; otherwise the
// statuses of its firings on that date are folded into one.
func Classify(slot Slot, day, now time.Time, loc, jobLoc *time.Location, benign []string) Status {
	start := Midnight(day, loc)
	var statuses []Status
	for at := range slot.Occurrences(Window{Start: start, End: start.AddDate(0, 0, 1)}, jobLoc) {
		statuses = append(statuses, ClassifyAt(slot, at, now, loc, jobLoc, benign))
	}
	return summarize(statuses)
}

// ClassifyAt derives the status of a single firing of slot at the instant at.
// The scheduled day is checked on at's date in jobLoc; the ran-today check
// uses dates in loc.
func ClassifyAt(slot Slot, at, now time.Time, loc, jobLoc *time.Location, benign []string) Status {
	if jobLoc == nil {
		jobLoc = loc
	}
	if !slot.FiresOn(at.In(jobLoc)) {
		return StatusSkipped
	}
	if at.After(now) {
		return StatusPending
	}
	if Midnight(at, loc).Before(Midnight(now, loc)) {
		return StatusNotApplicable
	}

	lastRun := slot.Live.LastRunAt()
	if lastRun == nil || !SameDate(*lastRun, at, loc) {
		return StatusUnknown
	}
	if strings.EqualFold(strings.TrimSpace(slot.Live.LastStatus), "ok") || IsBenign(slot.Live.LastStatus, benign) {
		return StatusOK
	}
	return StatusError
}

// summarize folds several statuses into one, the most informative winning.
func summarize(statuses []Status) Status {
	rank := map[Status]int{
		StatusError:         5,
		StatusOK:            4,
		StatusUnknown:       3,
		StatusPending:       2,
		StatusNotApplicable: 1,
		StatusSkipped:       0,
	}
	best := StatusSkipped
	for _, s := range statuses {
		if rank[s] > rank[best] {
			best = s
		}
	}
	return best
}
