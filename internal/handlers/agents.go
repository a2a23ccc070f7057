package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"ops-dashboard/internal/services/agents"
	"ops-dashboard/internal/store/kv"
)

// GetAgents classifies each agent from its session transcripts. When no agent
// has a transcript on this host, the last pushed agentStatus snapshot is
// served instead.
func (h *Handlers) GetAgents(c *fiber.Ctx) error {
	list := h.Agents.Statuses()
	resp := fiber.Map{
		"agents":  list,
		"uptime":  fmt.Sprintf("%ds", h.uptime()),
		"version": Version,
		"source":  "local-session-scan",
	}

	if !anyActive(list) && h.Snapshots != nil {
		var stored json.RawMessage
		err := kv.GetJSON(c.UserContext(), h.Snapshots, kv.KeyAgentStatus, &stored)
		switch {
		case err == nil:
			resp["agents"] = stored
			resp["source"] = "snapshot"
		case !errors.Is(err, kv.ErrNotFound):
			h.log.Warnw("Agent status snapshot unavailable", "error", err)
		}
	}
	return c.JSON(resp)
}

func anyActive(list []agents.AgentStatus) bool {
	for _, a := range list {
		if a.LastActive != nil {
			return true
		}
	}
	return false
}

func (h *Handlers) GetSessions(c *fiber.Ctx) error {
	sessions := h.Agents.Sessions()
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
