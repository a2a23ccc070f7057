package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handlers) GetPortfolio(c *fiber.Ctx) error {
	p, err := h.Portfolio.Portfolio(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}

func (h *Handlers) GetWatchlist(c *fiber.Ctx) error {
	items, err := h.Portfolio.Watchlist(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"watchlist": items,
	})
}

func (h *Handlers) GetCatalysts(c *fiber.Ctx) error {
	events, err := h.Portfolio.Catalysts()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"catalysts": events,
	})
}
