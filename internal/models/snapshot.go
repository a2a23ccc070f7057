package models

import (
	"time"
)

// Snapshot is one JSON document stored under a well-known key
// (cronState, activityLogs, reminders, ...).
type Snapshot struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
