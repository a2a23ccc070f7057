package schedule

import (
	"fmt"
	"slices"
	"time"
)

// Slot is one (hour, minute) firing time of a job definition.
type Slot struct {
	Hour            int
	Minute          int
	DayIndices      []int // Monday=0 .. Sunday=6, empty for special dates
	IsSpecialDate   bool
	SpecialDate     *MonthDay
	SpecialDateDesc string
	Job             JobDefinition
	Live            *LiveJobState
}

// BuildSlots expands a definition into one slot per (hour, minute) pair,
// ordered by time of day.
func BuildSlots(def JobDefinition, live *LiveJobState) []Slot {
	expr := ParseExpr(def.Schedule)
	if len(expr.Hours) == 0 || len(expr.Minutes) == 0 {
		return nil
	}

	slots := make([]Slot, 0, len(expr.Hours)*len(expr.Minutes))
	for _, h := range expr.Hours {
		for _, m := range expr.Minutes {
			slots = append(slots, Slot{
				Hour:            h,
				Minute:          m,
				DayIndices:      slices.Clone(expr.DayOfWeek),
				IsSpecialDate:   expr.IsSpecialDate,
				SpecialDate:     expr.SpecialDate,
				SpecialDateDesc: expr.SpecialDateDesc(),
				Job:             def,
				Live:            live,
			})
		}
	}
	return slots
}

// Clock renders the slot time as HH:MM.
func (s Slot) Clock() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// MinuteOfDay is the slot time in minutes since midnight.
func (s Slot) MinuteOfDay() int {
	return s.Hour*60 + s.Minute
}

// FiresOn reports whether the slot is scheduled on the calendar date of day,
// read in day's own location.
func (s Slot) FiresOn(day time.Time) bool {
	if s.IsSpecialDate {
		return s.SpecialDate != nil &&
			int(day.Month()) == s.SpecialDate.Month &&
			day.Day() == s.SpecialDate.Day
	}
	return slices.Contains(s.DayIndices, GridDay(day.Weekday()))
}

// GridDay converts a time.Weekday to the Monday-first grid index.
func GridDay(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
