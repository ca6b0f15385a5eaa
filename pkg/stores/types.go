package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// RunStatus represents the status of a recorded run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = RunStatus(engine.RunStatusSucceeded)
	RunStatusFailed    RunStatus = RunStatus(engine.RunStatusFailed)
	RunStatusPartial   RunStatus = RunStatus(engine.RunStatusPartial)
	RunStatusNoop      RunStatus = RunStatus(engine.RunStatusNoop)
	RunStatusAborted   RunStatus = "aborted"
)

// IsTerminal returns true if the run will not change anymore.
func (s RunStatus) IsTerminal() bool {
	return s != RunStatusRunning
}

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one apply or capture invocation that reached execution.
type Run struct {
	ID          string             `json:"id"`
	Direction   string             `json:"direction"` // apply or capture
	Mode        engine.ContextMode `json:"mode"`
	Prune       bool               `json:"prune"`
	Subsystems  string             `json:"subsystems"` // comma separated ids
	Status      RunStatus          `json:"status"`
	Planned     int                `json:"planned"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Summary     string             `json:"summary"` // JSON of engine.PlanSummary
	Error       *string            `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Duration returns how long the run took, zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// OperationRecord is the stored outcome of one executed operation.
type OperationRecord struct {
	ID        int64                `json:"id"`
	RunID     string               `json:"run_id"`
	Position  int                  `json:"position"`
	Subsystem string               `json:"subsystem"`
	Verb      engine.OperationVerb `json:"verb"`
	Target    string               `json:"target"`
	Success   bool                 `json:"success"`
	Message   *string              `json:"message,omitempty"`
	Duration  time.Duration        `json:"duration"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Level     EventLevel `json:"level"`
	Subsystem *string    `json:"subsystem,omitempty"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the run history
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	CompleteRun(ctx context.Context, id string, report *engine.ExecutionReport) error
	AbortRun(ctx context.Context, id string, cause error) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Operation records
	ListOperations(ctx context.Context, runID string) ([]*OperationRecord, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
