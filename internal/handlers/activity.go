package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ops-dashboard/internal/store/kv"
)

const maxLogEntries = 500

type LogEntry struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AgentID     string `json:"agentId,omitempty"`
}

// loadList decodes a JSON array snapshot; a missing key is an empty list.
func loadList[T any](ctx context.Context, store kv.Store, key string) ([]T, error) {
	var list []T
	err := kv.GetJSON(ctx, store, key, &list)
	if errors.Is(err, kv.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

// GetLogs returns the activity log, newest first.
func (h *Handlers) GetLogs(c *fiber.Ctx) error {
	logs, err := loadList[LogEntry](c.UserContext(), h.Snapshots, kv.KeyActivityLogs)
	if err != nil {
		return h.fail(c, err)
	}
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	return c.JSON(fiber.Map{
		"logs": logs,
	})
}

func (h *Handlers) AddLog(c *fiber.Ctx) error {
	var entry LogEntry
	if err := c.BodyParser(&entry); err != nil {
		return badRequest(c, "Invalid request body")
	}
	entry.Title = strings.TrimSpace(entry.Title)
	if entry.Title == "" {
		return badRequest(c, "title is required")
	}
	if entry.Type == "" {
		entry.Type = "info"
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = h.now().UTC().Format("2006-01-02T15:04:05.000Z")

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := c.UserContext()
	logs, err := loadList[LogEntry](ctx, h.Snapshots, kv.KeyActivityLogs)
	if err != nil {
		return h.fail(c, err)
	}
	logs = append([]LogEntry{entry}, logs...)
	if len(logs) > maxLogEntries {
		logs = logs[:maxLogEntries]
	}
	if err := kv.SetJSON(ctx, h.Snapshots, kv.KeyActivityLogs, logs); err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"log": entry,
	})
}

type Reminder struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Date    string `json:"date"`
	Urgency string `json:"urgency"`
}

// DefaultReminders are served until a reminders snapshot is pushed.
var DefaultReminders = []Reminder{
	{Type: "deadline", Title: "NAK DOJ Pebble Mine 回應", Date: "2026-02-16", Urgency: "high"},
	{Type: "catalyst", Title: "美股休市 (Presidents' Day)", Date: "2026-02-17", Urgency: "medium"},
}

func (h *Handlers) GetReminders(c *fiber.Ctx) error {
	var reminders []Reminder
	err := kv.GetJSON(c.UserContext(), h.Snapshots, kv.KeyReminders, &reminders)
	if errors.Is(err, kv.ErrNotFound) {
		return c.JSON(DefaultReminders)
	}
	if err != nil {
		return h.fail(c, err)
	}
	if reminders == nil {
		reminders = []Reminder{}
	}
	return c.JSON(reminders)
}

type PushSubscription struct {
	Endpoint       string   `json:"endpoint"`
	ExpirationTime *float64 `json:"expirationTime,omitempty"`
	Keys           struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (s PushSubscription) valid() bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

// loadSubscriptions reads the stored subscriptions. Older writers stored a
// single object rather than a list.
func (h *Handlers) loadSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	raw, err := h.Snapshots.Get(ctx, kv.KeyPushSubscription)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []PushSubscription
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var one PushSubscription
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, errors.Wrap(err, "decode push subscriptions")
	}
	return []PushSubscription{one}, nil
}

// Subscribe stores a browser push subscription, replacing any earlier one
// with the same endpoint. Delivery happens elsewhere.
func (h *Handlers) Subscribe(c *fiber.Ctx) error {
	var req struct {
		Subscription *PushSubscription `json:"subscription"`
	}
	if err := c.BodyParser(&req); err != nil || req.Subscription == nil || !req.Subscription.valid() {
		return badRequest(c, "Invalid subscription payload")
	}
	sub := *req.Subscription
	sub.CreatedAt = h.now().UTC().Format("2006-01-02T15:04:05.000Z")

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := c.UserContext()
	existing, err := h.loadSubscriptions(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	list := make([]PushSubscription, 0, len(existing)+1)
	for _, s := range existing {
		if s.Endpoint != sub.Endpoint && s.valid() {
			list = append(list, s)
		}
	}
	list = append(list, sub)
	if err := kv.SetJSON(ctx, h.Snapshots, kv.KeyPushSubscription, list); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"ok": true,
	})
}

func (h *Handlers) GetSubscriptions(c *fiber.Ctx) error {
	list, err := h.loadSubscriptions(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"count": len(list),
	})
}
