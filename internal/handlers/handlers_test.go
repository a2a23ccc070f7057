package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ops-dashboard/internal/database"
	"ops-dashboard/internal/livestate"
	"ops-dashboard/internal/middleware"
	"ops-dashboard/internal/quotes"
	"ops-dashboard/internal/schedule"
	"ops-dashboard/internal/services/agents"
	"ops-dashboard/internal/services/cron"
	"ops-dashboard/internal/services/portfolio"
	ws "ops-dashboard/internal/services/websocket"
	"ops-dashboard/internal/store/docs"
	"ops-dashboard/internal/store/kv"
	"ops-dashboard/internal/store/tasks"
)

type stubQuotes map[string]quotes.Quote

func (s stubQuotes) Quotes(_ context.Context, _ []string) (map[string]quotes.Quote, error) {
	return s, nil
}

type fixture struct {
	app       *fiber.App
	h         *Handlers
	snapshots *kv.FileStore
	workspace string
	openclaw  string
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	now := time.Date(2026, 10, 17, 15, 0, 0, 0, loc)

	workspace, openclaw := t.TempDir(), t.TempDir()
	snapshots, err := kv.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	taskStore, err := tasks.NewSQLiteStore(db)
	require.NoError(t, err)

	clock := func() time.Time { return now }
	feed := livestate.NewFeed(snapshots, kv.KeyCronState,
		livestate.WithRetry(time.Millisecond, 0), livestate.WithClock(clock))

	h := New(Deps{
		Projector: schedule.NewProjector(schedule.Catalog, loc, schedule.Options{}),
		Feed:      feed,
		Snapshots: snapshots,
		Tasks:     taskStore,
		Docs:      docs.New(workspace),
		Portfolio: portfolio.New(snapshots, stubQuotes{"NVDA": {Symbol: "NVDA", Price: 120}},
			filepath.Join(workspace, "memory", "investing", "swing_trades.json"), loc),
		Agents:    agents.New(openclaw),
		StartedAt: now.Add(-90 * time.Second),
	})
	h.now = clock

	app := fiber.New()
	h.Register(app, func(c *fiber.Ctx) error { return c.Next() })
	return &fixture{app: app, h: h, snapshots: snapshots, workspace: workspace, openclaw: openclaw, now: now}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (f *fixture) getJSON(t *testing.T, path string, dst any) int {
	t.Helper()
	code, body := f.do(t, "GET", path, "")
	require.NoError(t, json.Unmarshal(body, dst), string(body))
	return code
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.workspace, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var resp struct {
		OK      bool   `json:"ok"`
		Uptime  int64  `json:"uptime"`
		Version string `json:"version"`
		Feed    struct {
			Source string `json:"source"`
		} `json:"feed"`
	}
	assert.Equal(t, fiber.StatusOK, f.getJSON(t, "/api/health", &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, int64(90), resp.Uptime)
	assert.Equal(t, "1.0.0", resp.Version)
}

type stubScheduler map[string]time.Time

func (s stubScheduler) Next(name string) (time.Time, bool) {
	t, ok := s[name]
	return t, ok
}

func TestHealthReportsNextPoll(t *testing.T) {
	f := newFixture(t)
	next := f.now.Add(30 * time.Second)
	f.h.Poller = stubScheduler{cron.FeedRefresher: next}

	var resp struct {
		Feed struct {
			NextPoll *time.Time `json:"next_poll"`
		} `json:"feed"`
	}
	assert.Equal(t, fiber.StatusOK, f.getJSON(t, "/api/health", &resp))
	require.NotNil(t, resp.Feed.NextPoll)
	assert.True(t, next.Equal(*resp.Feed.NextPoll))

	f.h.Poller = stubScheduler{}
	var bare struct {
		Feed map[string]any `json:"feed"`
	}
	f.getJSON(t, "/api/health", &bare)
	assert.NotContains(t, bare.Feed, "next_poll")
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, kv.SetJSON(context.Background(), f.snapshots, kv.KeyCronState, map[string]any{
		"jobs": []map[string]any{{
			"id":    "pp-news",
			"name":  "news",
			"state": map[string]any{"lastRunAtMs": f.now.Add(-time.Hour).UnixMilli(), "lastStatus": "ok"},
		}},
	}))

	var grid struct {
		Mode string `json:"mode"`
		Days []struct {
			Date string `json:"date"`
		} `json:"days"`
		Jobs []struct {
			ID          string `json:"id"`
			AgentID     string `json:"agent_id"`
			Match       string `json:"match"`
			TodayStatus string `json:"today_status"`
		} `json:"jobs"`
		Feed struct {
			Jobs    int  `json:"jobs"`
			Missing bool `json:"missing"`
		} `json:"feed"`
	}
	assert.Equal(t, fiber.StatusOK, f.getJSON(t, "/api/schedule?mode=day&agent=main", &grid))
	assert.Equal(t, "day", grid.Mode)
	require.Len(t, grid.Days, 1)
	assert.Equal(t, "2026-10-17", grid.Days[0].Date)
	assert.Equal(t, 1, grid.Feed.Jobs)
	assert.False(t, grid.Feed.Missing)

	require.NotEmpty(t, grid.Jobs)
	for _, j := range grid.Jobs {
		assert.Equal(t, "main", j.AgentID)
		if j.ID == "pp-news" {
			assert.Equal(t, "id", j.Match)
			assert.Equal(t, "ok", j.TodayStatus)
		}
	}

	var week struct {
		Days []any `json:"days"`
	}
	f.getJSON(t, "/api/schedule", &week)
	assert.Len(t, week.Days, 7)
}

func TestScheduleJobs(t *testing.T) {
	f := newFixture(t)
	var resp struct {
		Jobs []struct {
			ID string `json:"id"`
		} `json:"jobs"`
		Timezone string `json:"timezone"`
	}
	f.getJSON(t, "/api/schedule/jobs", &resp)
	assert.Len(t, resp.Jobs, len(schedule.Catalog))
	assert.Equal(t, "Asia/Taipei", resp.Timezone)
}

func TestCronState_FallsBackToSessions(t *testing.T) {
	f := newFixture(t)
	session := filepath.Join(f.openclaw, "agents", "coder", "sessions", "s.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(session), 0755))
	require.NoError(t, os.WriteFile(session, []byte("{}"), 0644))

	var resp struct {
		Jobs []struct {
			ID         string `json:"id"`
			LastStatus string `json:"last_status"`
		} `json:"jobs"`
		Source string `json:"source"`
	}
	f.getJSON(t, "/api/cron/state", &resp)
	assert.Equal(t, "sessions-fallback", resp.Source)
	require.Len(t, resp.Jobs, len(agents.Known))
	assert.Equal(t, "fallback-main", resp.Jobs[0].ID)
}

func TestAgentsAndSessions(t *testing.T) {
	f := newFixture(t)

	var resp struct {
		Agents []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"agents"`
		Source string `json:"source"`
		Uptime string `json:"uptime"`
	}
	f.getJSON(t, "/api/agents", &resp)
	assert.Equal(t, "local-session-scan", resp.Source)
	assert.Equal(t, "90s", resp.Uptime)
	assert.Len(t, resp.Agents, len(agents.Known))

	require.NoError(t, kv.SetJSON(context.Background(), f.snapshots, kv.KeyAgentStatus,
		[]map[string]string{{"id": "main", "status": "acting"}}))
	f.getJSON(t, "/api/agents", &resp)
	assert.Equal(t, "snapshot", resp.Source)
	require.Len(t, resp.Agents, 1)
	assert.Equal(t, "acting", resp.Agents[0].Status)

	var sessions struct {
		Count int `json:"count"`
	}
	f.getJSON(t, "/api/sessions", &sessions)
	assert.Zero(t, sessions.Count)
}

func TestTasksCRUD(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "POST", "/api/tasks", `{"title":"Write weekly recap"}`)
	require.Equal(t, fiber.StatusCreated, code, string(body))
	var created struct {
		Task tasks.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, tasks.StatusIdeas, created.Task.Status)
	assert.Equal(t, tasks.DefaultAssignee, created.Task.Assignee)

	code, _ = f.do(t, "POST", "/api/tasks", `{"title":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body = f.do(t, "PATCH", "/api/tasks/"+created.Task.ID, `{"status":"進行中"}`)
	require.Equal(t, fiber.StatusOK, code, string(body))
	assert.Contains(t, string(body), "進行中")

	code, _ = f.do(t, "PATCH", "/api/tasks/"+created.Task.ID, `{"status":"Someday"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	var summary tasks.Summary
	f.getJSON(t, "/api/tasks/summary", &summary)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.ByStatus[tasks.StatusInProgress])

	code, _ = f.do(t, "DELETE", "/api/tasks/"+created.Task.ID, "")
	assert.Equal(t, fiber.StatusOK, code)
	code, _ = f.do(t, "DELETE", "/api/tasks/"+created.Task.ID, "")
	assert.Equal(t, fiber.StatusNotFound, code)

	var list struct {
		Tasks  []tasks.Task `json:"tasks"`
		Source string       `json:"source"`
	}
	f.getJSON(t, "/api/tasks", &list)
	assert.Empty(t, list.Tasks)
	assert.Equal(t, "sqlite", list.Source)
}

func TestTodo(t *testing.T) {
	f := newFixture(t)

	var empty struct {
		Items []any `json:"items"`
	}
	f.getJSON(t, "/api/tasks/todo", &empty)
	assert.Empty(t, empty.Items)

	f.write(t, "memory/todo_queue.md", "# Queue\n- [ ] one\n- [x] two\n")
	var fromFile docs.TodoList
	f.getJSON(t, "/api/tasks/todo", &fromFile)
	assert.Equal(t, 2, fromFile.Total)
	assert.Equal(t, 1, fromFile.Pending)

	require.NoError(t, kv.SetJSON(context.Background(), f.snapshots, kv.KeyTodoQueue,
		map[string]any{"items": []string{"a", "b", "c"}}))
	var fromSnapshot struct {
		Title string `json:"title"`
		Items []any  `json:"items"`
	}
	f.getJSON(t, "/api/tasks/todo", &fromSnapshot)
	assert.Equal(t, "工作佇列", fromSnapshot.Title)
	assert.Len(t, fromSnapshot.Items, 3)
}

func TestDocs(t *testing.T) {
	f := newFixture(t)
	f.write(t, "MEMORY.md", "# Memory\nNVDA thesis\n")
	f.write(t, "memory/lessons.md", "nothing here\n")

	var list struct {
		Files []docs.Doc `json:"files"`
	}
	f.getJSON(t, "/api/docs", &list)
	assert.Len(t, list.Files, 2)

	var file docs.File
	assert.Equal(t, fiber.StatusOK, f.getJSON(t, "/api/docs/file?path=MEMORY.md", &file))
	assert.Contains(t, file.Content, "NVDA")

	code, _ := f.do(t, "GET", "/api/docs/file?path=../etc/passwd", "")
	assert.Equal(t, fiber.StatusForbidden, code)
	code, _ = f.do(t, "GET", "/api/docs/file?path=missing.md", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	code, _ = f.do(t, "GET", "/api/docs/file", "")
	assert.Equal(t, fiber.StatusBadRequest, code)

	var results docs.SearchResults
	f.getJSON(t, "/api/docs/search?q=nvda", &results)
	assert.Equal(t, 1, results.Count)
	code, _ = f.do(t, "GET", "/api/docs/search", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestActions(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "POST", "/api/actions/note", `{"text":"remember this"}`)
	require.Equal(t, fiber.StatusOK, code, string(body))
	assert.Contains(t, string(body), "selection-")

	code, _ = f.do(t, "POST", "/api/actions/note", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body = f.do(t, "POST", "/api/actions/research", `{"text":"look into HBM supply"}`)
	require.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"success":true,"queued":1}`, string(body))

	code, body = f.do(t, "POST", "/api/actions/watchlist", `{"symbol":"nvda"}`)
	require.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"success":true,"symbol":"NVDA"}`, string(body))
	_, body = f.do(t, "POST", "/api/actions/watchlist", `{"text":"NVDA"}`)
	assert.Contains(t, string(body), "Already in watchlist")

	long := strings.Repeat("字", 120)
	code, body = f.do(t, "POST", "/api/actions/create-task", `{"text":"`+long+`"}`)
	require.Equal(t, fiber.StatusOK, code, string(body))
	var created struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	task, err := f.h.Tasks.Get(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(task.Title)))
	assert.Equal(t, long, task.Note)
}

func TestInvest(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, kv.SetJSON(context.Background(), f.snapshots, kv.KeyTransactions, []map[string]any{
		{"symbol": "NVDA", "action": "BUY", "quantity": 10, "price": 100},
	}))
	f.write(t, "memory/investing/swing_trades.json", `{
		"watchlist":[{"symbol":"NVDA","target_price":118}],
		"catalyst_watch":[{"symbol":"NVDA","date":"2026-11-19","event":"earnings"},{"symbol":"NVDA","date":"2026-01-01","event":"old"}]
	}`)

	var p portfolio.Portfolio
	require.Equal(t, fiber.StatusOK, f.getJSON(t, "/api/portfolio", &p))
	require.Len(t, p.Holdings, 1)
	assert.InDelta(t, 200, p.Holdings[0].PnL, 1e-9)

	var wl struct {
		Watchlist []portfolio.WatchItem `json:"watchlist"`
	}
	f.getJSON(t, "/api/invest/watchlist", &wl)
	require.Len(t, wl.Watchlist, 1)
	assert.True(t, wl.Watchlist[0].NearBuyPoint)

	var cat struct {
		Catalysts []portfolio.Catalyst `json:"catalysts"`
	}
	f.getJSON(t, "/api/invest/catalysts", &cat)
	require.Len(t, cat.Catalysts, 1)
	assert.Equal(t, "earnings", cat.Catalysts[0].Event)
}

func TestLogs(t *testing.T) {
	f := newFixture(t)

	var empty struct {
		Logs []LogEntry `json:"logs"`
	}
	f.getJSON(t, "/api/logs", &empty)
	assert.NotNil(t, empty.Logs)
	assert.Empty(t, empty.Logs)

	code, _ := f.do(t, "POST", "/api/logs", `{"type":"cron","title":"first"}`)
	require.Equal(t, fiber.StatusCreated, code)
	code, _ = f.do(t, "POST", "/api/logs", `{"title":"second","agentId":"coder"}`)
	require.Equal(t, fiber.StatusCreated, code)
	code, _ = f.do(t, "POST", "/api/logs", `{"type":"cron"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	var resp struct {
		Logs []LogEntry `json:"logs"`
	}
	f.getJSON(t, "/api/logs", &resp)
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, "second", resp.Logs[0].Title)
	assert.Equal(t, "info", resp.Logs[0].Type)
	assert.Equal(t, "coder", resp.Logs[0].AgentID)
	assert.NotEmpty(t, resp.Logs[0].ID)
	assert.NotEqual(t, resp.Logs[0].ID, resp.Logs[1].ID)

	f.getJSON(t, "/api/logs?limit=1", &resp)
	assert.Len(t, resp.Logs, 1)
}

func TestLogs_Capped(t *testing.T) {
	f := newFixture(t)
	seed := make([]LogEntry, maxLogEntries)
	for i := range seed {
		seed[i] = LogEntry{ID: "old", Title: "old"}
	}
	require.NoError(t, kv.SetJSON(context.Background(), f.snapshots, kv.KeyActivityLogs, seed))

	code, _ := f.do(t, "POST", "/api/logs", `{"title":"new"}`)
	require.Equal(t, fiber.StatusCreated, code)

	var stored []LogEntry
	require.NoError(t, kv.GetJSON(context.Background(), f.snapshots, kv.KeyActivityLogs, &stored))
	assert.Len(t, stored, maxLogEntries)
	assert.Equal(t, "new", stored[0].Title)
}

func TestReminders(t *testing.T) {
	f := newFixture(t)
	var got []Reminder
	f.getJSON(t, "/api/reminders", &got)
	assert.Equal(t, DefaultReminders, got)

	require.NoError(t, kv.SetJSON(context.Background(), f.snapshots, kv.KeyReminders,
		[]Reminder{{Type: "deadline", Title: "file taxes", Date: "2026-10-31", Urgency: "high"}}))
	f.getJSON(t, "/api/reminders", &got)
	require.Len(t, got, 1)
	assert.Equal(t, "file taxes", got[0].Title)
}

func TestPushSubscriptions(t *testing.T) {
	f := newFixture(t)
	sub := func(endpoint string) string {
		return `{"subscription":{"endpoint":"` + endpoint + `","keys":{"p256dh":"k","auth":"a"}}}`
	}

	code, body := f.do(t, "POST", "/api/push/subscribe", `{"subscription":{"endpoint":"https://push/1"}}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, string(body), "Invalid subscription payload")

	for _, ep := range []string{"https://push/1", "https://push/2", "https://push/1"} {
		code, _ = f.do(t, "POST", "/api/push/subscribe", sub(ep))
		require.Equal(t, fiber.StatusOK, code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	f.getJSON(t, "/api/push/subscriptions", &resp)
	assert.Equal(t, 2, resp.Count)
}

func TestPushSubscriptions_LegacySingleObject(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.snapshots.Set(context.Background(), kv.KeyPushSubscription,
		[]byte(`{"endpoint":"https://push/old","keys":{"p256dh":"k","auth":"a"}}`)))

	var resp struct {
		Count int `json:"count"`
	}
	f.getJSON(t, "/api/push/subscriptions", &resp)
	assert.Equal(t, 1, resp.Count)
}

func TestAuthGuardsAPI(t *testing.T) {
	f := newFixture(t)
	app := fiber.New()
	f.h.Register(app, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization"})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/tasks", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestScheduleStreamRequiresToken(t *testing.T) {
	f := newFixture(t)
	f.h.Hub = ws.NewHub()
	app := fiber.New()
	f.h.Register(app, middleware.AuthRequired("test-secret"))

	upgrade := func() *http.Request {
		req := httptest.NewRequest("GET", "/ws/schedule", nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		return req
	}

	resp, err := app.Test(upgrade(), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := upgrade()
	req.Header.Set("Cookie", "token=not-a-jwt")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/ws/schedule", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
