package schedule

import (
	"iter"
	"time"
)

// Window is a half-open [Start, End) range of whole calendar days in the
// display timezone.
type Window struct {
	Start time.Time
	End   time.Time
}

// Midnight returns the start of t's calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SameDate compares calendar dates of a and b as seen in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DayWindow covers the calendar day containing now in loc.
func DayWindow(now time.Time, loc *time.Location) Window {
	start := Midnight(now, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekWindow covers the Monday-started week containing now in loc.
func WeekWindow(now time.Time, loc *time.Location) Window {
	today := Midnight(now, loc)
	start := today.AddDate(0, 0, -GridDay(today.Weekday()))
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days lists the midnight of every calendar day in the window.
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := w.Start; d.Before(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Occurrences yields the concrete firing times of the slot inside w, in
// ascending order and in w's location. The slot's hour and minute are read in
// jobLoc, which is the job's declared timezone.
func (s Slot) Occurrences(w Window, jobLoc *time.Location) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !w.Start.Before(w.End) {
			return
		}
		if jobLoc == nil {
			jobLoc = w.Start.Location()
		}
		display := w.Start.Location()

		// Start a day early so a job zone behind the display zone is covered.
		for d := Midnight(w.Start, jobLoc).AddDate(0, 0, -1); d.Before(w.End); d = d.AddDate(0, 0, 1) {
			if !s.FiresOn(d) {
				continue
			}
			t := time.Date(d.Year(), d.Month(), d.Day(), s.Hour, s.Minute, 0, 0, jobLoc)
			if !t.Before(w.End) {
				return
			}
			if t.Before(w.Start) {
				continue
			}
			if !yield(t.In(display)) {
				return
			}
		}
	}
}
