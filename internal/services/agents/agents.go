// Package agents reports agent activity from the session transcripts the
// runtime writes under <openclaw>/agents/<id>/sessions.
package agents

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ops-dashboard/internal/schedule"
)

type Status string

const (
	StatusActing   Status = "acting"
	StatusThinking Status = "thinking"
	StatusIdle     Status = "idle"
)

const (
	actingWithin   = 2 * time.Minute
	thinkingWithin = 10 * time.Minute
	maxSessions    = 80
)

type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// Known lists the agents the dashboard tracks, in display order.
var Known = []Agent{
	{ID: "main", Name: "霈霈豬", Emoji: "🐷"},
	{ID: "trading-lab", Name: "Trading Lab", Emoji: "📈"},
	{ID: "coder", Name: "Coder", Emoji: "💻"},
	{ID: "learner", Name: "實習生阿霈", Emoji: "🎓"},
}

type AgentStatus struct {
	Agent
	Status      Status     `json:"status"`
	LastActive  *time.Time `json:"lastActive"`
	SessionFile string     `json:"sessionFile,omitempty"`
}

type Session struct {
	Agent      string    `json:"agent"`
	SessionKey string    `json:"sessionKey"`
	LastActive time.Time `json:"lastActive"`
	IsRunning  bool      `json:"isRunning"`
	Path       string    `json:"path"`
}

type Service struct {
	dir string
	now func() time.Time
}

// New scans agents below openclawRoot/agents.
func New(openclawRoot string) *Service {
	return &Service{dir: filepath.Join(openclawRoot, "agents"), now: time.Now}
}

func classify(lastActive time.Time, now time.Time) Status {
	if lastActive.IsZero() {
		return StatusIdle
	}
	switch age := now.Sub(lastActive); {
	case age <= actingWithin:
		return StatusActing
	case age <= thinkingWithin:
		return StatusThinking
	default:
		return StatusIdle
	}
}

type sessionFile struct {
	path  string
	mtime time.Time
}

// sessionFiles walks root for *.jsonl transcripts. A missing root yields none.
func sessionFiles(root string) []sessionFile {
	var out []sessionFile
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, sessionFile{path: path, mtime: info.ModTime()})
		return nil
	})
	return out
}

func (s *Service) latest(agentID string) (sessionFile, bool) {
	var best sessionFile
	found := false
	for _, f := range sessionFiles(filepath.Join(s.dir, agentID, "sessions")) {
		if !found || f.mtime.After(best.mtime) {
			best, found = f, true
		}
	}
	return best, found
}

// Statuses classifies every known agent by its most recent transcript write.
func (s *Service) Statuses() []AgentStatus {
	now := s.now()
	out := make([]AgentStatus, 0, len(Known))
	for _, a := range Known {
		st := AgentStatus{Agent: a, Status: StatusIdle}
		if f, ok := s.latest(a.ID); ok {
			at := f.mtime.UTC()
			st.LastActive = &at
			st.SessionFile = f.path
			st.Status = classify(f.mtime, now)
		}
		out = append(out, st)
	}
	return out
}

// Sessions lists the most recent transcripts across all agents, newest first.
func (s *Service) Sessions() []Session {
	now := s.now()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return []Session{}
	}

	var out []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, f := range sessionFiles(filepath.Join(s.dir, e.Name(), "sessions")) {
			out = append(out, Session{
				Agent:      e.Name(),
				SessionKey: strings.TrimSuffix(filepath.Base(f.path), ".jsonl"),
				LastActive: f.mtime.UTC(),
				IsRunning:  now.Sub(f.mtime) <= actingWithin,
				Path:       f.path,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	if len(out) > maxSessions {
		out = out[:maxSessions]
	}
	if out == nil {
		out = []Session{}
	}
	return out
}

// InferJobs stands in for a missing cron state with one pseudo-job per agent
// whose last run is the agent's latest transcript write.
func (s *Service) InferJobs() []schedule.LiveJobState {
	out := make([]schedule.LiveJobState, 0, len(Known))
	for _, a := range Known {
		job := schedule.LiveJobState{
			ID:         "fallback-" + a.ID,
			AgentID:    a.ID,
			Name:       a.Name + " session activity",
			Schedule:   "* * * * *",
			TZ:         schedule.DisplayZone,
			Enabled:    true,
			LastStatus: "unknown",
		}
		if f, ok := s.latest(a.ID); ok {
			ms := f.mtime.UnixMilli()
			job.LastRunAtMs = &ms
			job.LastStatus = "ok"
		}
		out = append(out, job)
	}
	return out
}
