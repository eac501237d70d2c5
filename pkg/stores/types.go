package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/results"
)

// RunStatus represents the status of an assignment run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Done reports whether the status is terminal.
func (s RunStatus) Done() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// EventLevel represents the severity level of a run event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Sample summarizes the evidence stored for one sample
type Sample struct {
	Name            string    `json:"name"`
	PropertyResults int       `json:"property_results"`
	StepResults     int       `json:"step_results"`
	Matches         int       `json:"matches"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Run represents one assignment of a set of samples against a property tree
type Run struct {
	ID           string     `json:"id"`
	TreePath     string     `json:"tree_path"`
	RootProperty string     `json:"root_property"`
	Status       RunStatus  `json:"status"`
	Parallelism  int        `json:"parallelism"`
	Samples      []string   `json:"samples"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Event represents a log entry attached to a run
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Sample    *string    `json:"sample,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Sample evidence operations
	SaveEvidence(ctx context.Context, cache *engine.AssignmentCache) error
	LoadEvidence(ctx context.Context, sample string) (*engine.AssignmentCache, error)
	ListSamples(ctx context.Context) ([]*Sample, error)
	DeleteSample(ctx context.Context, name string) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Run result operations
	SaveResults(ctx context.Context, runID string, res *results.Results) error
	LoadResults(ctx context.Context, runID string, tree *engine.Tree) (*results.Results, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
