package schedule

import "strings"

// MatchKind records which rule attached a live state to a definition.
type MatchKind string

const (
	MatchNone      MatchKind = "none"
	MatchID        MatchKind = "id"
	MatchName      MatchKind = "name"
	MatchContains  MatchKind = "contains"
	MatchHeuristic MatchKind = "heuristic"
	MatchSchedule  MatchKind = "schedule"
)

// HeuristicRules maps a catalog id to lower-case fragments of the live job
// name the runner is known to use for it.
type HeuristicRules map[string][]string

// DefaultHeuristics covers known naming drift between the catalog and the
// cron runner.
var DefaultHeuristics = HeuristicRules{
	"pp-mimi-check":    {"mimivsjames", "mimi vs james"},
	"pp-close-summary": {"收盤總結", "close summary"},
	"pp-news":          {"新聞", "news monitor"},
	"pp-premarket":     {"盤前報告", "premarket report"},
	"tl-review":        {"盤後反思", "post-market review"},
	"tl-weekly":        {"週末總結", "weekly summary"},
}

// Merge returns a copy of r with extra's fragments appended per id.
func (r HeuristicRules) Merge(extra HeuristicRules) HeuristicRules {
	out := make(HeuristicRules, len(r)+len(extra))
	for id, frags := range r {
		out[id] = append([]string(nil), frags...)
	}
	for id, frags := range extra {
		for _, f := range frags {
			out[id] = append(out[id], strings.ToLower(f))
		}
	}
	return out
}

// Reconcile picks the live state for def. Each level scans every live entry
// before the next level is tried, and the first hit wins. When a level has
// several candidates the earliest in feed order is returned; the second
// return value of Candidates exposes the ambiguity for logging.
func Reconcile(def JobDefinition, live []LiveJobState, rules HeuristicRules) (*LiveJobState, MatchKind) {
	m, kind, _ := Candidates(def, live, rules)
	return m, kind
}

// Candidates is Reconcile plus the number of entries that matched at the
// winning level.
func Candidates(def JobDefinition, live []LiveJobState, rules HeuristicRules) (*LiveJobState, MatchKind, int) {
	levels := []struct {
		kind  MatchKind
		match func(*LiveJobState) bool
	}{
		{MatchID, func(l *LiveJobState) bool {
			return def.ID != "" && l.ID == def.ID
		}},
		{MatchName, func(l *LiveJobState) bool {
			return def.Name != "" && l.Name == def.Name
		}},
		{MatchContains, func(l *LiveJobState) bool {
			a, b := strings.ToLower(l.Name), strings.ToLower(def.Name)
			if a == "" || b == "" {
				return false
			}
			return strings.Contains(a, b) || strings.Contains(b, a)
		}},
		{MatchHeuristic, func(l *LiveJobState) bool {
			name := strings.ToLower(l.Name)
			if name == "" {
				return false
			}
			for _, frag := range rules[def.ID] {
				if frag != "" && strings.Contains(name, frag) {
					return true
				}
			}
			return false
		}},
		{MatchSchedule, func(l *LiveJobState) bool {
			return l.Schedule != "" && sameExpr(l.Schedule, def.Schedule) && l.AgentID == def.AgentID
		}},
	}

	for _, level := range levels {
		var first *LiveJobState
		count := 0
		for i := range live {
			if level.match(&live[i]) {
				if first == nil {
					first = &live[i]
				}
				count++
			}
		}
		if first != nil {
			return first, level.kind, count
		}
	}
	return nil, MatchNone, 0
}

func sameExpr(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}
