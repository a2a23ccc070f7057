package schedule

import (
	"sort"
	"time"
)

type ViewMode string

const (
	ModeDay  ViewMode = "day"
	ModeWeek ViewMode = "week"
)

// ParseMode defaults to the week view.
func ParseMode(s string) ViewMode {
	if ViewMode(s) == ModeDay {
		return ModeDay
	}
	return ModeWeek
}

// Options tune a Projector. The zero value uses the default allow-list and
// heuristics.
type Options struct {
	BenignFailures []string
	Heuristics     HeuristicRules
	// OnAmbiguous is called when more than one live entry matched a
	// definition at the winning level.
	OnAmbiguous func(def JobDefinition, kind MatchKind, candidates int)
}

// Projector turns the static catalog and a live snapshot into calendar views.
// It holds no mutable state; Project may be called concurrently.
type Projector struct {
	catalog []JobDefinition
	loc     *time.Location
	zones   map[string]*time.Location
	opts    Options
}

func NewProjector(catalog []JobDefinition, loc *time.Location, opts Options) *Projector {
	if opts.BenignFailures == nil {
		opts.BenignFailures = DefaultBenignFailures
	}
	if opts.Heuristics == nil {
		opts.Heuristics = DefaultHeuristics
	}

	zones := make(map[string]*time.Location)
	for _, def := range catalog {
		if _, ok := zones[def.TZ]; ok {
			continue
		}
		z, err := time.LoadLocation(def.TZ)
		if err != nil || def.TZ == "" {
			z = loc
		}
		zones[def.TZ] = z
	}

	return &Projector{catalog: catalog, loc: loc, zones: zones, opts: opts}
}

// Location is the display timezone.
func (p *Projector) Location() *time.Location {
	return p.loc
}

type Query struct {
	Mode  ViewMode
	Agent string // empty or "all" for every agent
	Now   time.Time
}

type Day struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Index   int    `json:"index"`
	IsToday bool   `json:"is_today"`
}

type Occurrence struct {
	JobID      string     `json:"job_id"`
	AgentID    string     `json:"agent_id"`
	Name       string     `json:"name"`
	Category   Category   `json:"category"`
	At         time.Time  `json:"at"`
	DayIndex   int        `json:"day_index"`
	Status     Status     `json:"status"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	Match      MatchKind  `json:"match"`
}

type Row struct {
	Time    string       `json:"time"`
	Hour    int          `json:"hour"`
	Minute  int          `json:"minute"`
	Entries []Occurrence `json:"entries"`
}

type SpecialOccurrence struct {
	JobID   string     `json:"job_id"`
	AgentID string     `json:"agent_id"`
	Name    string     `json:"name"`
	Desc    string     `json:"desc"`
	Time    string     `json:"time"`
	Next    *time.Time `json:"next,omitempty"`
	Status  Status     `json:"status"`
	Match   MatchKind  `json:"match"`
}

type JobView struct {
	JobDefinition
	Live          *LiveJobState `json:"live,omitempty"`
	Match         MatchKind     `json:"match"`
	Times         []string      `json:"times"`
	DayIndices    []int         `json:"day_indices"`
	IsSpecialDate bool          `json:"is_special_date"`
	SpecialDate   string        `json:"special_date,omitempty"`
	TodayStatus   Status        `json:"today_status"`
	NextRunAt     *time.Time    `json:"next_run_at,omitempty"`
	ValidExpr     bool          `json:"valid_expr"`
}

type Grid struct {
	Mode         ViewMode            `json:"mode"`
	Timezone     string              `json:"timezone"`
	Now          time.Time           `json:"now"`
	WindowStart  time.Time           `json:"window_start"`
	WindowEnd    time.Time           `json:"window_end"`
	Days         []Day               `json:"days"`
	Rows         []Row               `json:"rows"`
	SpecialDates []SpecialOccurrence `json:"special_dates"`
	Jobs         []JobView           `json:"jobs"`
}

type placed struct {
	occ    Occurrence
	order  int
	hour   int
	minute int
	clock  string
}

// Project computes the grid for q over the live snapshot.
func (p *Projector) Project(live []LiveJobState, q Query) Grid {
	now := q.Now.In(p.loc)
	var window Window
	if q.Mode == ModeDay {
		window = DayWindow(now, p.loc)
	} else {
		q.Mode = ModeWeek
		window = WeekWindow(now, p.loc)
	}
	today := Midnight(now, p.loc)

	grid := Grid{
		Mode:         q.Mode,
		Timezone:     p.loc.String(),
		Now:          now,
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		Rows:         []Row{},
		SpecialDates: []SpecialOccurrence{},
		Jobs:         []JobView{},
	}
	for i, d := range window.Days() {
		grid.Days = append(grid.Days, Day{
			Date:    d.Format("2006-01-02"),
			Weekday: d.Weekday().String()[:3],
			Index:   i,
			IsToday: d.Equal(today),
		})
	}

	var entries []placed
	order := 0
	for _, def := range p.catalog {
		if !p.matchesAgent(def, q.Agent) {
			continue
		}

		match, kind, count := Candidates(def, live, p.opts.Heuristics)
		if count > 1 && p.opts.OnAmbiguous != nil {
			p.opts.OnAmbiguous(def, kind, count)
		}
		jobLoc := p.zones[def.TZ]
		slots := BuildSlots(def, match)

		view := JobView{
			JobDefinition: def,
			Live:          match,
			Match:         kind,
			Times:         []string{},
			DayIndices:    []int{},
			TodayStatus:   StatusSkipped,
			NextRunAt:     NextRun(def, now, jobLoc),
			ValidExpr:     ValidExpr(def.Schedule),
		}
		var todays []Status

		for _, slot := range slots {
			view.Times = append(view.Times, slot.Clock())
			view.DayIndices = slot.DayIndices
			view.IsSpecialDate = slot.IsSpecialDate
			view.SpecialDate = slot.SpecialDateDesc
			todays = append(todays, Classify(slot, today, now, p.loc, jobLoc, p.opts.BenignFailures))

			if slot.IsSpecialDate {
				grid.SpecialDates = append(grid.SpecialDates, SpecialOccurrence{
					JobID:   def.ID,
					AgentID: def.AgentID,
					Name:    def.Name,
					Desc:    slot.SpecialDateDesc,
					Time:    slot.Clock(),
					Next:    p.nextSpecial(slot, today, jobLoc),
					Status:  Classify(slot, today, now, p.loc, jobLoc, p.opts.BenignFailures),
					Match:   kind,
				})
				continue
			}

			for at := range slot.Occurrences(window, jobLoc) {
				day := Midnight(at, p.loc)
				entries = append(entries, placed{
					occ: Occurrence{
						JobID:      def.ID,
						AgentID:    def.AgentID,
						Name:       def.Name,
						Category:   def.Category,
						At:         at,
						DayIndex:   int(day.Sub(window.Start).Hours()+0.5) / 24,
						Status:     ClassifyAt(slot, at, now, p.loc, jobLoc, p.opts.BenignFailures),
						LastRunAt:  match.LastRunAt(),
						LastStatus: lastStatus(match),
						Match:      kind,
					},
					order:  order,
					hour:   at.Hour(),
					minute: at.Minute(),
					clock:  at.Format("15:04"),
				})
				order++
			}
		}

		view.TodayStatus = summarize(todays)
		grid.Jobs = append(grid.Jobs, view)
	}

	grid.Rows = groupRows(entries)
	sort.SliceStable(grid.SpecialDates, func(i, j int) bool {
		a, b := grid.SpecialDates[i].Next, grid.SpecialDates[j].Next
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return grid
}

func (p *Projector) matchesAgent(def JobDefinition, agent string) bool {
	return agent == "" || agent == "all" || def.AgentID == agent
}

// nextSpecial finds the first firing of an annual slot on or after today.
func (p *Projector) nextSpecial(slot Slot, today time.Time, jobLoc *time.Location) *time.Time {
	if slot.SpecialDate == nil {
		return nil
	}
	md := slot.SpecialDate
	// Feb 29 may be up to eight years away.
	for y := today.Year(); y <= today.Year()+8; y++ {
		t := time.Date(y, time.Month(md.Month), md.Day, slot.Hour, slot.Minute, 0, 0, jobLoc)
		if int(t.Month()) != md.Month || t.Day() != md.Day {
			continue
		}
		t = t.In(p.loc)
		if Midnight(t, p.loc).Before(today) {
			continue
		}
		return &t
	}
	return nil
}

func groupRows(entries []placed) []Row {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.occ.At.Equal(b.occ.At) {
			return a.occ.At.Before(b.occ.At)
		}
		return a.order < b.order
	})

	byClock := make(map[string]int)
	var rows []Row
	for _, e := range entries {
		idx, ok := byClock[e.clock]
		if !ok {
			idx = len(rows)
			byClock[e.clock] = idx
			rows = append(rows, Row{Time: e.clock, Hour: e.hour, Minute: e.minute})
		}
		rows[idx].Entries = append(rows[idx].Entries, e.occ)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Hour*60+rows[i].Minute < rows[j].Hour*60+rows[j].Minute
	})
	if rows == nil {
		rows = []Row{}
	}
	return rows
}

func lastStatus(s *LiveJobState) string {
	if s == nil {
		return ""
	}
	return s.LastStatus
}
