// Package handlers is the dashboard's HTTP API.
package handlers

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"ops-dashboard/internal/livestate"
	"ops-dashboard/internal/logger"
	"ops-dashboard/internal/quotes"
	"ops-dashboard/internal/schedule"
	"ops-dashboard/internal/services/agents"
	"ops-dashboard/internal/services/portfolio"
	ws "ops-dashboard/internal/services/websocket"
	"ops-dashboard/internal/store/docs"
	"ops-dashboard/internal/store/kv"
	"ops-dashboard/internal/store/tasks"
)

const Version = "1.0.0"

// Scheduler reports when a named background refresh runs next.
type Scheduler interface {
	Next(name string) (time.Time, bool)
}

// Deps are the collaborators the handlers serve from. Nil optional
// collaborators (Hub, Portfolio, Poller) disable the routes that need them.
type Deps struct {
	Projector *schedule.Projector
	Feed      *livestate.Feed
	Snapshots kv.Store
	Tasks     tasks.Store
	Docs      *docs.Store
	Portfolio *portfolio.Service
	Agents    *agents.Service
	Hub       *ws.Hub
	StartedAt time.Time
	DiskPath  string
	Poller    Scheduler
}

type Handlers struct {
	Deps
	now func() time.Time
	log *zap.SugaredLogger

	mu sync.Mutex // serializes read-modify-write of list snapshots
}

func New(d Deps) *Handlers {
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now()
	}
	return &Handlers{Deps: d, now: time.Now, log: logger.ComponentLogger("api")}
}

// Register mounts the API and the schedule stream. Everything but the health
// check goes through auth.
func (h *Handlers) Register(app *fiber.App, auth fiber.Handler) {
	if h.Hub != nil {
		// WebSocket upgrade middleware
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				c.Locals("allowed", true)
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/schedule", auth, websocket.New(h.Hub.Handler()))
	}

	api := app.Group("/api")
	api.Get("/health", h.GetHealth)

	protected := api.Group("/", auth)

	protected.Get("/schedule", h.GetSchedule)
	protected.Get("/schedule/jobs", h.GetScheduleJobs)
	protected.Get("/cron/state", h.GetCronState)

	protected.Get("/agents", h.GetAgents)
	protected.Get("/sessions", h.GetSessions)

	protected.Get("/tasks", h.GetTasks)
	protected.Post("/tasks", h.CreateTask)
	protected.Get("/tasks/summary", h.GetTaskSummary)
	protected.Get("/tasks/todo", h.GetTodo)
	protected.Patch("/tasks/:id", h.UpdateTask)
	protected.Delete("/tasks/:id", h.DeleteTask)

	protected.Get("/docs", h.GetDocs)
	protected.Get("/docs/file", h.GetDocFile)
	protected.Get("/docs/search", h.SearchDocs)

	protected.Post("/actions/note", h.SaveNote)
	protected.Post("/actions/research", h.QueueResearch)
	protected.Post("/actions/watchlist", h.AddToWatchlist)
	protected.Post("/actions/create-task", h.CreateTaskFromSelection)

	protected.Get("/portfolio", h.GetPortfolio)
	protected.Get("/invest/watchlist", h.GetWatchlist)
	protected.Get("/invest/catalysts", h.GetCatalysts)

	protected.Get("/logs", h.GetLogs)
	protected.Post("/logs", h.AddLog)
	protected.Get("/reminders", h.GetReminders)

	protected.Post("/push/subscribe", h.Subscribe)
	protected.Get("/push/subscriptions", h.GetSubscriptions)
}

// fail maps store errors to a status code and the usual error body.
func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, tasks.ErrNotFound), errors.Is(err, docs.ErrNotFound), errors.Is(err, kv.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, tasks.ErrInvalid), errors.Is(err, docs.ErrInvalid):
		code = fiber.StatusBadRequest
	case errors.Is(err, docs.ErrForbidden):
		code = fiber.StatusForbidden
	case errors.Is(err, quotes.ErrNotConfigured):
		code = fiber.StatusServiceUnavailable
	}
	if code == fiber.StatusInternalServerError {
		h.log.Errorw("Request failed", "route", c.Route().Path, logger.FieldError, err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
