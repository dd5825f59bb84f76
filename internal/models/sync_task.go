package models

import "time"

// SyncTask is a durable unit of work for the sheets mirror.
type SyncTask struct {
	ID          int64
	TaskType    string
	VisitID     string
	Payload     string
	Status      string
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	NextRetryAt *time.Time
}
