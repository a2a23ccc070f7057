package handlers

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"ops-dashboard/internal/store/docs"
	"ops-dashboard/internal/store/kv"
	"ops-dashboard/internal/store/tasks"
)

func (h *Handlers) GetTasks(c *fiber.Ctx) error {
	list, err := h.Tasks.List(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"tasks":  list,
		"source": h.Tasks.Name(),
	})
}

func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var req tasks.Task
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.ID = ""
	t, err := tasks.WithDefaults(req)
	if err != nil {
		return h.fail(c, err)
	}
	created, err := h.Tasks.Create(c.UserContext(), t)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"task": created,
	})
}

func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var patch tasks.Patch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := patch.Validate(); err != nil {
		return h.fail(c, err)
	}
	updated, err := h.Tasks.Update(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"task": updated,
	})
}

func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	if err := h.Tasks.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (h *Handlers) GetTaskSummary(c *fiber.Ctx) error {
	list, err := h.Tasks.List(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(tasks.Summarize(list))
}

type todoQueue struct {
	Title     string            `json:"title"`
	UpdatedAt *string           `json:"updatedAt"`
	Items     []json.RawMessage `json:"items"`
}

// GetTodo serves the agents' work queue: the pushed todoQueue snapshot when
// there is one, otherwise the checkboxes in the workspace's todo file.
func (h *Handlers) GetTodo(c *fiber.Ctx) error {
	if h.Snapshots != nil {
		var q todoQueue
		err := kv.GetJSON(c.UserContext(), h.Snapshots, kv.KeyTodoQueue, &q)
		if err == nil {
			if q.Title == "" {
				q.Title = "工作佇列"
			}
			if q.Items == nil {
				q.Items = []json.RawMessage{}
			}
			return c.JSON(q)
		}
		if !errors.Is(err, kv.ErrNotFound) {
			h.log.Warnw("Todo snapshot unavailable", "error", err)
		}
	}

	list, err := h.Docs.Todo()
	if errors.Is(err, docs.ErrNotFound) {
		return c.JSON(fiber.Map{
			"items": []any{},
		})
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}
