package dto

import (
	"time"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/models"
)

// EnqueueDTO is the enqueue payload, on the command line and over HTTP.
// A nil MaxRetries means the configured default.
type EnqueueDTO struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	Command    string `json:"command" validate:"required"`
	MaxRetries *int   `json:"max_retries" validate:"omitempty,gte=0"`
}

type JobResponseDTO struct {
	ID         string          `json:"id"`
	Command    string          `json:"command"`
	State      config.JobState `json:"state"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	Output     string          `json:"output,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func NewJobResponse(j *models.Job) JobResponseDTO {
	resp := JobResponseDTO{
		ID:         j.ID,
		Command:    j.Command,
		State:      j.State,
		Attempts:   j.Attempts,
		MaxRetries: j.MaxRetries,
		Output:     j.Output,
		NextRunAt:  j.NextRunAt,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
	if j.LastError != nil {
		resp.LastError = *j.LastError
	}
	return resp
}

type DeadLetterDTO struct {
	ID       string    `json:"id"`
	Command  string    `json:"command"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func NewDeadLetter(d *models.DeadLetter) DeadLetterDTO {
	return DeadLetterDTO{
		ID:       d.ID,
		Command:  d.Command,
		Reason:   d.Reason,
		FailedAt: d.FailedAt,
	}
}

// StatusDTO has one entry per job state, zero counts included.
type StatusDTO struct {
	Jobs         map[config.JobState]int64 `json:"jobs"`
	DeadLettered int64                     `json:"dead_lettered"`
}

type ConfigSetDTO struct {
	Value string `json:"value" validate:"required"`
}
