package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

const (
	notionVersion  = "2022-06-28"
	notionPageSize = 100

	propTitle    = "任務"
	propStatus   = "狀態"
	propAssignee = "指派"
	propPriority = "優先度"
	propDue      = "截止日"
	propNote     = "備註"
)

// NotionStore keeps tasks as pages of a Notion database. Deleting archives
// the page.
type NotionStore struct {
	baseURL    string
	apiKey     string
	databaseID string
	client     *http.Client
	limiter    *rate.Limiter
}

// NewNotionStore talks to baseURL (normally https://api.notion.com/v1).
// Requests are throttled to Notion's average of three per second.
func NewNotionStore(baseURL, apiKey, databaseID string, client *http.Client) (*NotionStore, error) {
	if apiKey == "" {
		return nil, errors.New("notion api key is required")
	}
	if databaseID == "" {
		return nil, errors.New("notion database id is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &NotionStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		databaseID: databaseID,
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(3), 3),
	}, nil
}

func (s *NotionStore) Name() string { return "notion" }

type notionText struct {
	PlainText string `json:"plain_text"`
}

type notionProp struct {
	Title    []notionText `json:"title"`
	RichText []notionText `json:"rich_text"`
	Select   *struct {
		Name string `json:"name"`
	} `json:"select"`
	Date *struct {
		Start string `json:"start"`
	} `json:"date"`
}

type notionPage struct {
	ID         string                `json:"id"`
	Archived   bool                  `json:"archived"`
	Properties map[string]notionProp `json:"properties"`
}

func (p notionPage) task() Task {
	t := Task{ID: p.ID, Title: UntitledTask, Status: StatusIdeas, Assignee: DefaultAssignee, Priority: DefaultPriority}
	if prop, ok := p.Properties[propTitle]; ok && len(prop.Title) > 0 && prop.Title[0].PlainText != "" {
		t.Title = prop.Title[0].PlainText
	}
	if prop, ok := p.Properties[propStatus]; ok && prop.Select != nil {
		t.Status = ParseStatus(prop.Select.Name)
	}
	if prop, ok := p.Properties[propAssignee]; ok && prop.Select != nil && prop.Select.Name != "" {
		t.Assignee = prop.Select.Name
	}
	if prop, ok := p.Properties[propPriority]; ok && prop.Select != nil && prop.Select.Name != "" {
		t.Priority = prop.Select.Name
	}
	if prop, ok := p.Properties[propDue]; ok && prop.Date != nil {
		t.DueDate = prop.Date.Start
	}
	if prop, ok := p.Properties[propNote]; ok {
		var b strings.Builder
		for _, rt := range prop.RichText {
			b.WriteString(rt.PlainText)
		}
		t.Note = b.String()
	}
	return t
}

func notionStatusName(s Status) string {
	if s == StatusIdeas {
		return "Backlog"
	}
	return string(s)
}

func textValue(content string) []map[string]any {
	if content == "" {
		return []map[string]any{}
	}
	return []map[string]any{{"text": map[string]string{"content": content}}}
}

// properties renders only the fields set in p.
func properties(p Patch) map[string]any {
	props := map[string]any{}
	if p.Title != nil {
		title := *p.Title
		if title == "" {
			title = UntitledTask
		}
		props[propTitle] = map[string]any{"title": textValue(title)}
	}
	if p.Status != nil {
		props[propStatus] = map[string]any{"select": map[string]string{"name": notionStatusName(*p.Status)}}
	}
	if p.Assignee != nil {
		props[propAssignee] = map[string]any{"select": map[string]string{"name": *p.Assignee}}
	}
	if p.Priority != nil {
		props[propPriority] = map[string]any{"select": map[string]string{"name": *p.Priority}}
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			props[propDue] = map[string]any{"date": nil}
		} else {
			props[propDue] = map[string]any{"date": map[string]string{"start": *p.DueDate}}
		}
	}
	if p.Note != nil {
		props[propNote] = map[string]any{"rich_text": textValue(*p.Note)}
	}
	return props
}

func fullPatch(t Task) Patch {
	return Patch{
		Title:    &t.Title,
		Status:   &t.Status,
		Assignee: &t.Assignee,
		Priority: &t.Priority,
		DueDate:  &t.DueDate,
		Note:     &t.Note,
	}
}

func (s *NotionStore) List(ctx context.Context) ([]Task, error) {
	var out []Task
	body := map[string]any{"page_size": notionPageSize}
	for {
		var resp struct {
			Results    []notionPage `json:"results"`
			HasMore    bool         `json:"has_more"`
			NextCursor string       `json:"next_cursor"`
		}
		if err := s.call(ctx, http.MethodPost, "/databases/"+s.databaseID+"/query", body, &resp); err != nil {
			return nil, errors.Wrap(err, "query notion tasks")
		}
		for _, page := range resp.Results {
			if !page.Archived {
				out = append(out, page.task())
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		body["start_cursor"] = resp.NextCursor
	}
	if out == nil {
		out = []Task{}
	}
	return out, nil
}

func (s *NotionStore) Get(ctx context.Context, id string) (Task, error) {
	var page notionPage
	if err := s.call(ctx, http.MethodGet, "/pages/"+id, nil, &page); err != nil {
		return Task{}, err
	}
	if page.Archived {
		return Task{}, ErrNotFound
	}
	return page.task(), nil
}

func (s *NotionStore) Create(ctx context.Context, t Task) (Task, error) {
	t, err := WithDefaults(t)
	if err != nil {
		return Task{}, err
	}
	body := map[string]any{
		"parent":     map[string]string{"database_id": s.databaseID},
		"properties": properties(fullPatch(t)),
	}
	var page notionPage
	if err := s.call(ctx, http.MethodPost, "/pages", body, &page); err != nil {
		return Task{}, errors.Wrap(err, "create notion task")
	}
	return page.task(), nil
}

func (s *NotionStore) Update(ctx context.Context, id string, p Patch) (Task, error) {
	if err := p.Validate(); err != nil {
		return Task{}, err
	}
	var page notionPage
	body := map[string]any{"properties": properties(p)}
	if err := s.call(ctx, http.MethodPatch, "/pages/"+id, body, &page); err != nil {
		return Task{}, errors.Wrapf(err, "update notion task %s", id)
	}
	return page.task(), nil
}

func (s *NotionStore) Delete(ctx context.Context, id string) error {
	if err := s.call(ctx, http.MethodPatch, "/pages/"+id, map[string]any{"archived": true}, nil); err != nil {
		return errors.Wrapf(err, "archive notion task %s", id)
	}
	return nil
}

func (s *NotionStore) call(ctx context.Context, method, path string, body any, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		if resp.StatusCode == http.StatusBadRequest {
			return errors.Wrapf(ErrInvalid, "notion: %s", apiErr.Message)
		}
		return errors.Newf("notion %s %s: status %d %s", method, path, resp.StatusCode, apiErr.Code)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode notion response")
}
