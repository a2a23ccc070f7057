package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MonthDay pins an annual calendar date.
type MonthDay struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%d/%d", md.Month, md.Day)
}

// Expr is the structural form of a 5-field cron expression, reduced to what the
// weekly grid needs. It is not a general cron engine.
type Expr struct {
	Minutes       []int
	Hours         []int
	DayOfWeek     []int // Monday=0 .. Sunday=6
	IsSpecialDate bool
	SpecialDate   *MonthDay
	// raw day-of-month and month fields, kept for descriptions
	dom, month string
}

// cron day-of-week (Sunday=0, also 7) to Monday-first grid index.
var cronToGridDay = map[int]int{0: 6, 1: 0, 2: 1, 3: 2, 4: 3, 5: 4, 6: 5, 7: 6}

// ParseExpr parses permissively. Anything it cannot understand contributes
// nothing, so a malformed expression yields an Expr without slots.
func ParseExpr(spec string) Expr {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return Expr{}
	}

	e := Expr{
		Minutes: parseField(fields[0], 0, 59),
		Hours:   parseField(fields[1], 0, 23),
		dom:     fields[2],
		month:   fields[3],
	}

	if fields[2] != "*" && fields[3] != "*" {
		e.IsSpecialDate = true
		day, errDay := strconv.Atoi(fields[2])
		month, errMonth := strconv.Atoi(fields[3])
		if errDay == nil && errMonth == nil && month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			e.SpecialDate = &MonthDay{Month: month, Day: day}
		}
		return e
	}
	// A monthly day never lands on a fixed weekday.
	if fields[2] != "*" {
		return e
	}

	for _, d := range parseField(fields[4], 0, 7) {
		if idx, ok := cronToGridDay[d]; ok {
			e.DayOfWeek = append(e.DayOfWeek, idx)
		}
	}
	slices.Sort(e.DayOfWeek)
	e.DayOfWeek = slices.Compact(e.DayOfWeek)
	return e
}

// SpecialDateDesc renders the pinned date, falling back to the raw fields when
// they are not plain integers.
func (e Expr) SpecialDateDesc() string {
	if !e.IsSpecialDate {
		return ""
	}
	if e.SpecialDate != nil {
		return e.SpecialDate.String()
	}
	return e.month + "/" + e.dom
}

// parseField expands *, integers, comma lists and a-b ranges within [lo, hi].
// Values outside the range and unparseable tokens are dropped.
func parseField(field string, lo, hi int) []int {
	if field == "*" {
		out := make([]int, 0, hi-lo+1)
		for v := lo; v <= hi; v++ {
			out = append(out, v)
		}
		return out
	}

	var out []int
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if start, end, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(start)
			b, errB := strconv.Atoi(end)
			if errA != nil || errB != nil || a > b {
				continue
			}
			for v := a; v <= b; v++ {
				if v >= lo && v <= hi {
					out = append(out, v)
				}
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil || v < lo || v > hi {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
