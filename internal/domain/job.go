package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a queued unit of background work.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobDead      JobStatus = "dead"
)

// JobKind names a job handler.
type JobKind string

const (
	JobKindDrawRun         JobKind = "draw.run"
	JobKindSnapshotRefresh JobKind = "snapshot.refresh"
	JobKindCheckoutExpire  JobKind = "checkout.expire"
)

// Job is a row in the jobs table. LockedBy/LockedUntil form the claim lease.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Kind        JobKind         `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	DedupeKey   *string         `json:"dedupe_key,omitempty"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LockedBy    *string         `json:"locked_by,omitempty"`
	LockedUntil *time.Time      `json:"locked_until,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EnqueueParams describes a job to schedule.
type EnqueueParams struct {
	Kind        JobKind
	Payload     json.RawMessage
	DedupeKey   string
	RunAt       time.Time
	MaxAttempts int
}

// Lease is a time-bounded exclusive claim on a named resource. The token proves ownership
// for renew and release.
type Lease struct {
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Token     uuid.UUID `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JobRunSummary is returned to the job trigger after a runner pass.
type JobRunSummary struct {
	Status    RunStatus  `json:"status"`
	Claimed   int        `json:"claimed"`
	Succeeded int        `json:"succeeded"`
	Retried   int        `json:"retried"`
	Dead      int        `json:"dead"`
	Errors    []RunError `json:"errors"`
}

// SnapshotRefreshPayload is the payload of a snapshot.refresh job.
type SnapshotRefreshPayload struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Winner     bool      `json:"winner,omitempty"`
}
