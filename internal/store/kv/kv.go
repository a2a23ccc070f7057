// Package kv stores the dashboard's JSON snapshots (cron state, activity logs,
// reminders, push subscriptions, ...) behind one small interface with
// interchangeable backends.
package kv

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Well-known snapshot keys.
const (
	KeyCronState        = "cronState"
	KeyActivityLogs     = "activityLogs"
	KeyReminders        = "reminders"
	KeyAgentStatus      = "agentStatus"
	KeyPushSubscription = "pushSubscription"
	KeyTodoQueue        = "todoQueue"
	KeyTransactions     = "transactions"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("snapshot not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Name identifies the backend in logs and health output.
	Name() string
}

// GetJSON decodes the snapshot under key into dst. A missing key leaves dst
// untouched and returns ErrNotFound.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrapf(err, "decode snapshot %s", key)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode snapshot %s", key)
	}
	return s.Set(ctx, key, raw)
}

func checkKey(key string) error {
	if key == "" {
		return errors.New("snapshot key is required")
	}
	return nil
}
