package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handlers) GetDocs(c *fiber.Ctx) error {
	files, err := h.Docs.List()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"files":    files,
		"syncedAt": h.now().UTC(),
		"source":   "local-files",
	})
}

// GetDocFile reads ?path= relative to the workspace root
func (h *Handlers) GetDocFile(c *fiber.Ctx) error {
	file, err := h.Docs.Read(c.Query("path"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(file)
}

func (h *Handlers) SearchDocs(c *fiber.Ctx) error {
	results, err := h.Docs.Search(c.Query("q"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(results)
}
