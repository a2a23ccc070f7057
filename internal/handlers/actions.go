package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"ops-dashboard/internal/store/tasks"
)

// selection is the body of every text-selection action. The watchlist
// action reads Symbol and falls back to Text.
type selection struct {
	Text   string `json:"text"`
	Symbol string `json:"symbol"`
}

func parseSelection(c *fiber.Ctx) (selection, bool) {
	var req selection
	if err := c.BodyParser(&req); err != nil {
		return req, false
	}
	return req, true
}

func (h *Handlers) SaveNote(c *fiber.Ctx) error {
	req, ok := parseSelection(c)
	if !ok {
		return badRequest(c, "Invalid request body")
	}
	filename, err := h.Docs.SaveNote(req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"filename": filename,
	})
}

func (h *Handlers) QueueResearch(c *fiber.Ctx) error {
	req, ok := parseSelection(c)
	if !ok {
		return badRequest(c, "Invalid request body")
	}
	queued, err := h.Docs.QueueResearch(req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"queued":  queued,
	})
}

func (h *Handlers) AddToWatchlist(c *fiber.Ctx) error {
	req, ok := parseSelection(c)
	if !ok {
		return badRequest(c, "Invalid request body")
	}
	symbol := req.Symbol
	if strings.TrimSpace(symbol) == "" {
		symbol = req.Text
	}
	if strings.TrimSpace(symbol) == "" {
		return badRequest(c, "symbol is required")
	}

	symbol, added, err := h.Portfolio.AddToWatchlist(symbol)
	if err != nil {
		return h.fail(c, err)
	}
	if !added {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Already in watchlist",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"symbol":  symbol,
	})
}

func (h *Handlers) CreateTaskFromSelection(c *fiber.Ctx) error {
	req, ok := parseSelection(c)
	if !ok {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest(c, "text is required")
	}
	t, err := h.Tasks.Create(c.UserContext(), tasks.FromSelection(req.Text))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"taskId":  t.ID,
	})
}
