package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ops-dashboard/internal/livestate"
	"ops-dashboard/internal/schedule"
)

type scheduleResponse struct {
	schedule.Grid
	Feed feedStatus `json:"feed"`
}

func (h *Handlers) project(c *fiber.Ctx, mode schedule.ViewMode) (schedule.Grid, livestate.Snapshot) {
	snap := h.Feed.Get(c.UserContext())
	grid := h.Projector.Project(snap.Jobs, schedule.Query{
		Mode:  mode,
		Agent: c.Query("agent"),
		Now:   h.now(),
	})
	return grid, snap
}

// GetSchedule returns the day or week grid, optionally for one agent
func (h *Handlers) GetSchedule(c *fiber.Ctx) error {
	grid, snap := h.project(c, schedule.ParseMode(c.Query("mode")))
	return c.JSON(scheduleResponse{Grid: grid, Feed: describeFeed(snap)})
}

// GetScheduleJobs returns the catalog joined with live state
func (h *Handlers) GetScheduleJobs(c *fiber.Ctx) error {
	grid, snap := h.project(c, schedule.ModeWeek)
	return c.JSON(fiber.Map{
		"jobs":     grid.Jobs,
		"timezone": grid.Timezone,
		"feed":     describeFeed(snap),
	})
}

// GetCronState returns the normalized live feed. Without any cron state the
// agents' session activity stands in.
func (h *Handlers) GetCronState(c *fiber.Ctx) error {
	snap := h.Feed.Get(c.UserContext())
	jobs, source := snap.Jobs, snap.Source
	if snap.Missing && h.Agents != nil {
		jobs, source = h.Agents.InferJobs(), "sessions-fallback"
	}
	return c.JSON(fiber.Map{
		"jobs":        jobs,
		"source":      source,
		"generatedAt": h.now().UTC(),
		"fetchedAt":   snap.FetchedAt,
		"error":       snap.Error,
	})
}

// BroadcastSchedule pushes today's grid for every agent to websocket clients.
// It is subscribed to the feed so clients update after each poll.
func (h *Handlers) BroadcastSchedule(snap livestate.Snapshot) {
	if h.Hub == nil {
		return
	}
	grid := h.Projector.Project(snap.Jobs, schedule.Query{Mode: schedule.ModeDay, Now: h.now()})
	h.Hub.Publish("schedule", scheduleResponse{Grid: grid, Feed: describeFeed(snap)})
}
