package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// History records runs of the apply and capture commands.
type History struct {
	store Store
	now   func() time.Time
}

// NewHistory creates a history backed by store.
func NewHistory(store Store) *History {
	return &History{store: store, now: time.Now}
}

// Begin records a run that is about to execute summary. Plan warnings are
// stored as warning events of the run.
func (h *History) Begin(ctx context.Context, direction string, subsystems []string, opts engine.ExecutionOptions, summary engine.PlanSummary) (string, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to encode plan summary: %w", err)
	}

	run := &Run{
		ID:         uuid.New().String(),
		Direction:  direction,
		Mode:       opts.Mode,
		Prune:      opts.Prune,
		Subsystems: strings.Join(subsystems, ","),
		Status:     RunStatusRunning,
		Planned:    summary.ActionCount(),
		Summary:    string(data),
		StartedAt:  h.now(),
	}
	if err := h.store.CreateRun(ctx, run); err != nil {
		return "", err
	}

	for _, w := range summary.Warnings() {
		event := &Event{
			RunID:     &run.ID,
			Level:     EventLevelWarning,
			Message:   w.Message,
			Timestamp: run.StartedAt,
		}
		if w.Subsystem != "" {
			sub := w.Subsystem
			event.Subsystem = &sub
		}
		if err := h.store.AppendEvent(ctx, event); err != nil {
			return run.ID, err
		}
	}

	return run.ID, nil
}

// Finish stores the report of a run started with Begin. Failed operations are
// also logged as error events.
func (h *History) Finish(ctx context.Context, runID string, report *engine.ExecutionReport) error {
	if err := h.store.CompleteRun(ctx, runID, report); err != nil {
		return err
	}
	if report == nil {
		return nil
	}

	for _, res := range report.Failures() {
		sub := res.Operation.Subsystem
		event := &Event{
			RunID:     &runID,
			Level:     EventLevelError,
			Subsystem: &sub,
			Message:   fmt.Sprintf("%s: %s", res.Operation, res.Message),
			Timestamp: h.now(),
		}
		if err := h.store.AppendEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Abort closes a run that failed before execution.
func (h *History) Abort(ctx context.Context, runID string, cause error) error {
	return h.store.AbortRun(ctx, runID, cause)
}

// Entry is a run with its operation records and events.
type Entry struct {
	Run        *Run               `json:"run"`
	Operations []*OperationRecord `json:"operations"`
	Events     []*Event           `json:"events"`
}

// Get loads a run with its records. A unique prefix of the run id is accepted.
func (h *History) Get(ctx context.Context, id string) (*Entry, error) {
	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		run, err = h.byPrefix(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	ops, err := h.store.ListOperations(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	events, err := h.store.GetEvents(ctx, &run.ID, nil, -1, 0)
	if err != nil {
		return nil, err
	}
	return &Entry{Run: run, Operations: ops, Events: events}, nil
}

func (h *History) byPrefix(ctx context.Context, prefix string) (*Run, error) {
	runs, err := h.store.ListRuns(ctx, -1, 0)
	if err != nil {
		return nil, err
	}

	var match *Run
	for _, r := range runs {
		if !strings.HasPrefix(r.ID, prefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("run id prefix is ambiguous: %s", prefix)
		}
		match = r
	}
	if match == nil {
		return nil, fmt.Errorf("run not found: %s", prefix)
	}
	return match, nil
}

// Recent returns the newest runs, at most limit.
func (h *History) Recent(ctx context.Context, limit int) ([]*Run, error) {
	return h.store.ListRuns(ctx, limit, 0)
}

// Retain deletes all but the newest keep runs.
func (h *History) Retain(ctx context.Context, keep int) (int64, error) {
	return h.store.PruneRuns(ctx, keep)
}
