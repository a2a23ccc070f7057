package models

import (
	"time"

	"gorm.io/gorm"
)

type Task struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Title     string         `gorm:"size:200;not null" json:"title"`
	Status    string         `gorm:"size:20;index;default:'Ideas'" json:"status"`
	Assignee  string         `gorm:"size:50" json:"assignee"`
	Priority  string         `gorm:"size:20" json:"priority"`
	DueDate   string         `gorm:"size:10" json:"due_date"`
	Note      string         `gorm:"type:text" json:"note"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
