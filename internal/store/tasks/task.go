// Package tasks is the collaborative task board. Tasks live either in the
// local database or in a Notion database.
package tasks

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

type Status string

const (
	StatusIdeas      Status = "Ideas"
	StatusTodo       Status = "To-do"
	StatusInProgress Status = "進行中"
	StatusReview     Status = "Review"
	StatusDone       Status = "完成"
)

// Statuses is the board's column order.
var Statuses = []Status{StatusIdeas, StatusTodo, StatusInProgress, StatusReview, StatusDone}

const (
	DefaultAssignee = "Andy"
	DefaultPriority = "🟡 中"
	UntitledTask    = "未命名任務"
)

// ParseStatus maps stored status names to board columns. "Backlog" is the
// Notion name for Ideas; anything unrecognised lands in Ideas.
func ParseStatus(s string) Status {
	switch strings.TrimSpace(s) {
	case "Backlog", string(StatusIdeas):
		return StatusIdeas
	case string(StatusTodo):
		return StatusTodo
	case string(StatusInProgress):
		return StatusInProgress
	case string(StatusReview):
		return StatusReview
	case string(StatusDone):
		return StatusDone
	}
	return StatusIdeas
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   Status `json:"status"`
	Assignee string `json:"assignee"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date,omitempty"`
	Note     string `json:"note"`
}

// Patch carries a partial update; nil fields are left alone. An empty DueDate
// clears the due date.
type Patch struct {
	Title    *string `json:"title"`
	Status   *Status `json:"status"`
	Assignee *string `json:"assignee"`
	Priority *string `json:"priority"`
	DueDate  *string `json:"due_date"`
	Note     *string `json:"note"`
}

func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return errors.Wrapf(ErrInvalid, "unknown status %q", *p.Status)
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.Wrap(ErrInvalid, "title must not be empty")
	}
	return nil
}

var (
	ErrNotFound = errors.New("task not found")
	ErrInvalid  = errors.New("invalid task")
)

type Store interface {
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Create(ctx context.Context, t Task) (Task, error)
	Update(ctx context.Context, id string, p Patch) (Task, error)
	Delete(ctx context.Context, id string) error
	Name() string
}

// WithDefaults fills the fields a new task may omit.
func WithDefaults(t Task) (Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return t, errors.Wrap(ErrInvalid, "title is required")
	}
	if t.Status == "" {
		t.Status = StatusIdeas
	}
	if !t.Status.Valid() {
		return t, errors.Wrapf(ErrInvalid, "unknown status %q", t.Status)
	}
	if t.Assignee == "" {
		t.Assignee = DefaultAssignee
	}
	if t.Priority == "" {
		t.Priority = DefaultPriority
	}
	return t, nil
}

// FromSelection builds the task created from a text selection: the first
// 100 characters become the title and long selections are kept in the note.
func FromSelection(text string) Task {
	text = strings.TrimSpace(text)
	title := text
	note := ""
	if r := []rune(text); len(r) > 100 {
		title = string(r[:100])
		note = text
	}
	return Task{Title: title, Status: StatusIdeas, Assignee: DefaultAssignee, Priority: DefaultPriority, Note: note}
}

type Summary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// Summarize counts tasks per column. Every column is present, even at zero.
func Summarize(list []Task) Summary {
	s := Summary{Total: len(list), ByStatus: make(map[Status]int, len(Statuses))}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}
	for _, t := range list {
		s.ByStatus[ParseStatus(string(t.Status))]++
	}
	return s
}
