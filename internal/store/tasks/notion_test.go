package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notionRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func pageJSON(id, title, status string) map[string]any {
	return map[string]any{
		"id": id,
		"properties": map[string]any{
			"任務":  map[string]any{"title": []map[string]string{{"plain_text": title}}},
			"狀態":  map[string]any{"select": map[string]string{"name": status}},
			"指派":  map[string]any{"select": map[string]string{"name": "Trading Lab"}},
			"優先度": map[string]any{"select": map[string]string{"name": "🔴 高"}},
			"截止日": map[string]any{"date": map[string]string{"start": "2026-10-20"}},
			"備註":  map[string]any{"rich_text": []map[string]string{{"plain_text": "a"}, {"plain_text": "b"}}},
		},
	}
}

func newNotion(t *testing.T, handler func(r notionRequest) (int, any)) (*NotionStore, *[]notionRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []notionRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, notionVersion, r.Header.Get("Notion-Version"))
		req := notionRequest{Method: r.Method, Path: r.URL.Path}
		_ = json.NewDecoder(r.Body).Decode(&req.Body)
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		code, body := handler(req)
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	s, err := NewNotionStore(srv.URL+"/v1/", "secret", "db-1", srv.Client())
	require.NoError(t, err)
	return s, &seen
}

func TestNotionStore_ListPaginatesAndMaps(t *testing.T) {
	s, seen := newNotion(t, func(r notionRequest) (int, any) {
		if r.Body["start_cursor"] == nil {
			return 200, map[string]any{
				"results":     []any{pageJSON("p1", "研究 TSM", "Backlog")},
				"has_more":    true,
				"next_cursor": "c2",
			}
		}
		archived := pageJSON("p3", "old", "完成")
		archived["archived"] = true
		return 200, map[string]any{"results": []any{pageJSON("p2", "", "Review"), archived}}
	})

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, Task{
		ID: "p1", Title: "研究 TSM", Status: StatusIdeas, Assignee: "Trading Lab",
		Priority: "🔴 高", DueDate: "2026-10-20", Note: "ab",
	}, list[0])
	assert.Equal(t, UntitledTask, list[1].Title)
	assert.Equal(t, StatusReview, list[1].Status)

	require.Len(t, *seen, 2)
	assert.Equal(t, "/v1/databases/db-1/query", (*seen)[0].Path)
	assert.EqualValues(t, 100, (*seen)[0].Body["page_size"])
}

func TestNotionStore_CreateSendsDefaults(t *testing.T) {
	s, seen := newNotion(t, func(r notionRequest) (int, any) {
		return 200, pageJSON("new", "寫週報", "Backlog")
	})

	task, err := s.Create(context.Background(), Task{Title: "寫週報"})
	require.NoError(t, err)
	assert.Equal(t, "new", task.ID)

	req := (*seen)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v1/pages", req.Path)
	props := req.Body["properties"].(map[string]any)
	assert.Equal(t, "Backlog", props["狀態"].(map[string]any)["select"].(map[string]any)["name"])
	assert.Equal(t, "Andy", props["指派"].(map[string]any)["select"].(map[string]any)["name"])
	assert.Equal(t, "🟡 中", props["優先度"].(map[string]any)["select"].(map[string]any)["name"])
	assert.Nil(t, props["截止日"].(map[string]any)["date"])
	assert.Equal(t, "db-1", req.Body["parent"].(map[string]any)["database_id"])
}

func TestNotionStore_UpdateSendsOnlyPatchedFields(t *testing.T) {
	s, seen := newNotion(t, func(r notionRequest) (int, any) {
		return 200, pageJSON("p1", "x", "進行中")
	})

	status := StatusInProgress
	task, err := s.Update(context.Background(), "p1", Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, task.Status)

	req := (*seen)[0]
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "/v1/pages/p1", req.Path)
	props := req.Body["properties"].(map[string]any)
	assert.Len(t, props, 1)
}

func TestNotionStore_DeleteArchives(t *testing.T) {
	s, seen := newNotion(t, func(r notionRequest) (int, any) {
		return 200, map[string]any{"id": "p1", "archived": true}
	})

	require.NoError(t, s.Delete(context.Background(), "p1"))
	assert.Equal(t, true, (*seen)[0].Body["archived"])
}

func TestNotionStore_Errors(t *testing.T) {
	s, _ := newNotion(t, func(r notionRequest) (int, any) {
		if strings.HasSuffix(r.Path, "/missing") {
			return 404, map[string]string{"code": "object_not_found"}
		}
		if r.Method == http.MethodPatch {
			return 400, map[string]string{"code": "validation_error", "message": "bad select"}
		}
		return 502, map[string]string{"code": "bad_gateway"}
	})
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	title := "y"
	_, err = s.Update(ctx, "p1", Patch{Title: &title})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.List(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewNotionStore_RequiresCredentials(t *testing.T) {
	_, err := NewNotionStore("http://x", "", "db", nil)
	assert.Error(t, err)
	_, err = NewNotionStore("http://x", "k", "", nil)
	assert.Error(t, err)
}
