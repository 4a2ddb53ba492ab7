package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no run matches the requested id.
var ErrNotFound = errors.New("run not found")

// Run is the ledger record of one request, successful or not.
type Run struct {
	ID         string        `json:"id"`
	Language   string        `json:"language"`
	OutputType string        `json:"output_type"`
	RenderMode string        `json:"visualization_type"`
	Status     string        `json:"status"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	ArtifactID string        `json:"artifact_id,omitempty"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ListOptions filters and paginates ListRuns.
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// Store persists run records.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, opts ListOptions) ([]Run, error)
	Close() error
}
