package models

import (
	"time"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"gorm.io/datatypes"
)

type Job struct {
	ID         string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Command    string          `gorm:"type:text;not null" json:"command"`
	State      config.JobState `gorm:"type:varchar(20);not null" json:"state"`
	Attempts   int             `gorm:"not null" json:"attempts"`
	MaxRetries int             `gorm:"not null" json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
	LastError  *string         `gorm:"type:text" json:"last_error,omitempty"`
	Output     string          `gorm:"type:text;not null;default:''" json:"output"`
}

func (Job) TableName() string { return "jobs" }

// DeadLetter is a job that exhausted its retry budget. Snapshot keeps the
// job's execution state at the moment it was dead-lettered.
type DeadLetter struct {
	ID       string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Command  string         `gorm:"type:text;not null" json:"command"`
	Reason   string         `gorm:"type:text;not null" json:"reason"`
	FailedAt time.Time      `json:"failed_at"`
	Snapshot datatypes.JSON `gorm:"type:text" json:"snapshot,omitempty"`
}

func (DeadLetter) TableName() string { return "dlq" }

// DeadLetterSnapshot is the shape stored in DeadLetter.Snapshot.
type DeadLetterSnapshot struct {
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
	Output     string    `json:"output,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Setting struct {
	Key       string `gorm:"primaryKey;type:varchar(64)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "settings" }
