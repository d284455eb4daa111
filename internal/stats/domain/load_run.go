package domain

import "time"

type LoadRunStatus string

const (
	LoadRunRunning   LoadRunStatus = "running"
	LoadRunCompleted LoadRunStatus = "completed"
	LoadRunFailed    LoadRunStatus = "failed"
)

// LoadRun records one backfill of a user's mailbox into the analytics store.
type LoadRun struct {
	ID         string        `json:"id" gorm:"primaryKey"`
	UserID     string        `json:"user_id" gorm:"index;not null"`
	OwnerEmail string        `json:"owner_email" gorm:"not null"`
	Status     LoadRunStatus `json:"status" gorm:"type:varchar(16);not null"`
	Pages      int           `json:"pages"`
	Before     *int64        `json:"before,omitempty"`
	Newest     *int64        `json:"newest,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}
