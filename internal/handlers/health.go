package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"ops-dashboard/internal/livestate"
	"ops-dashboard/internal/services/cron"
	"ops-dashboard/internal/services/monitor"
)

type feedStatus struct {
	Source    string     `json:"source"`
	FetchedAt time.Time  `json:"fetched_at"`
	Error     string     `json:"error,omitempty"`
	Missing   bool       `json:"missing"`
	Jobs      int        `json:"jobs"`
	NextPoll  *time.Time `json:"next_poll,omitempty"`
}

func describeFeed(s livestate.Snapshot) feedStatus {
	return feedStatus{
		Source:    s.Source,
		FetchedAt: s.FetchedAt,
		Error:     s.Error,
		Missing:   s.Missing,
		Jobs:      len(s.Jobs),
	}
}

func (h *Handlers) uptime() int64 {
	return int64(h.now().Sub(h.StartedAt) / time.Second)
}

// GetHealth reports liveness, host stats and the state of the live feed
// without forcing a refresh.
func (h *Handlers) GetHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"ok":      true,
		"uptime":  h.uptime(),
		"version": Version,
		"host":    monitor.Collect(c.UserContext(), h.DiskPath, h.StartedAt),
	}
	if h.Feed != nil {
		feed := describeFeed(h.Feed.Snapshot())
		if h.Poller != nil {
			if next, ok := h.Poller.Next(cron.FeedRefresher); ok && !next.IsZero() {
				feed.NextPoll = &next
			}
		}
		resp["feed"] = feed
	}
	if h.Hub != nil {
		resp["ws_clients"] = h.Hub.ClientCount()
	}
	return c.JSON(resp)
}
