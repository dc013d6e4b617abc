package store

import (
	"context"
	"time"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/pkg/geocode"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one execution of a pipeline stage.
type Run struct {
	ID         string         `json:"id"`
	Stage      string         `json:"stage"`
	Status     RunStatus      `json:"status"`
	Stats      map[string]int `json:"stats,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Stage  string    `json:"stage,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// Store defines the persistence interface of the pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, stage string, startedAt time.Time) (*Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus, stats map[string]int, runErr error, finishedAt time.Time) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Geocode cache
	geocode.Cache

	// Flood lookup cache
	GetFloodTag(ctx context.Context, p model.Coordinate) (*model.FloodTag, error)
	PutFloodTag(ctx context.Context, p model.Coordinate, tag model.FloodTag) error

	// Sales
	SaveTransactions(ctx context.Context, runID string, txs []model.Transaction) error
	LoadTransactions(ctx context.Context, runID string) ([]model.Transaction, error)

	// Communes
	SaveCommunes(ctx context.Context, communes []model.Commune) error
	GetCommune(ctx context.Context, code string) (*model.Commune, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
