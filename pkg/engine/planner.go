package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Adapter binds a SystemComponent to the engine. It plans apply and capture
// and reports drift for one resource kind.
type Adapter[K comparable, T Diffable[K, T], M any] struct {
	id        string
	component SystemComponent[K, T, M]
	reconcile Reconciler[T]
	filter    CaptureFilter[T]
}

// NewAdapter creates an adapter. A nil reconciler means the resource kind
// cannot be applied.
func NewAdapter[K comparable, T Diffable[K, T], M any](id string, component SystemComponent[K, T, M], reconcile Reconciler[T]) *Adapter[K, T, M] {
	return &Adapter[K, T, M]{
		id:        NormalizeID(id),
		component: component,
		reconcile: reconcile,
	}
}

// WithCaptureFilter restricts which system items capture records.
func (a *Adapter[K, T, M]) WithCaptureFilter(filter CaptureFilter[T]) *Adapter[K, T, M] {
	a.filter = filter
	return a
}

// ID returns the normalized subsystem id.
func (a *Adapter[K, T, M]) ID() string {
	return a.id
}

// Name returns the component display name.
func (a *Adapter[K, T, M]) Name() string {
	return a.component.Name()
}

// Component returns the wrapped component.
func (a *Adapter[K, T, M]) Component() SystemComponent[K, T, M] {
	return a.component
}

// SyncPlannable returns the apply planner, or nil without a reconciler.
func (a *Adapter[K, T, M]) SyncPlannable() Plannable {
	if a.reconcile == nil {
		return nil
	}
	return &syncPlanner[K, T, M]{adapter: a}
}

// CapturePlannable returns the capture planner, or nil if the component
// cannot capture or cannot write its manifest.
func (a *Adapter[K, T, M]) CapturePlannable() Plannable {
	capturer, ok := any(a.component).(Capturer[T, M])
	if !ok {
		return nil
	}
	writer, ok := any(a.component).(ManifestWriter[M])
	if !ok {
		return nil
	}
	return &capturePlanner[K, T, M]{adapter: a, capturer: capturer, writer: writer}
}

// Status scans the system, loads the manifest and summarizes the drift.
func (a *Adapter[K, T, M]) Status(ctx context.Context) (ComponentStatus, error) {
	report, _, _, err := a.inspect(ctx)
	if err != nil {
		return ComponentStatus{}, err
	}
	return NewComponentStatus(a.Name(), report), nil
}

// Drift scans the system, loads the manifest and returns the drift by label.
func (a *Adapter[K, T, M]) Drift(ctx context.Context) (DriftView, error) {
	report, _, _, err := a.inspect(ctx)
	if err != nil {
		return DriftView{}, err
	}
	return NewDriftView[K](a.Name(), report), nil
}

// Diff computes drift with the component override when it has one.
func (a *Adapter[K, T, M]) Diff(system, manifest []T) DriftReport[T] {
	if cmp, ok := any(a.component).(DriftComparer[T]); ok {
		return cmp.Diff(system, manifest)
	}
	return ComputeDrift[K](system, manifest)
}

// inspect reads both sides and diffs them. Failures are planning errors.
func (a *Adapter[K, T, M]) inspect(ctx context.Context) (DriftReport[T], []T, M, error) {
	var manifest M

	system, err := a.component.ScanSystem(ctx)
	if err != nil {
		return DriftReport[T]{}, nil, manifest, NewPlanningError("failed to scan system", err).
			WithSubsystem(a.id).
			WithCode(ErrCodeScanFailed)
	}

	manifest, err = a.component.LoadManifest(ctx)
	if err != nil {
		return DriftReport[T]{}, nil, manifest, NewPlanningError("failed to load manifest", err).
			WithSubsystem(a.id).
			WithCode(ErrCodeManifestLoad)
	}

	report := a.Diff(system, a.component.ManifestItems(manifest))
	log.Debug().
		Str("subsystem", a.id).
		Int("to_install", len(report.ToInstall)).
		Int("to_update", len(report.ToUpdate)).
		Int("untracked", len(report.Untracked)).
		Int("synced", report.SyncedCount).
		Msg("Computed drift")
	return report, system, manifest, nil
}

// syncPlanner plans the manifest to system direction.
type syncPlanner[K comparable, T Diffable[K, T], M any] struct {
	adapter *Adapter[K, T, M]
}

func (p *syncPlanner[K, T, M]) ID() string { return p.adapter.id }

func (p *syncPlanner[K, T, M]) Plan(ctx context.Context, pctx *PlanContext) (Plan, error) {
	if pctx == nil {
		return nil, NewPlanningError("plan context is nil", nil).WithSubsystem(p.adapter.id)
	}
	report, _, _, err := p.adapter.inspect(ctx)
	if err != nil {
		return nil, err
	}

	actions, warnings := p.adapter.reconcile.Reconcile(pctx, report)
	for i := range actions {
		if actions[i].Operation.Subsystem == "" {
			actions[i].Operation.Subsystem = p.adapter.id
		}
	}
	for i := range warnings {
		if warnings[i].Subsystem == "" {
			warnings[i].Subsystem = p.adapter.id
		}
	}
	return NewActionPlan(p.adapter.Name(), actions, warnings), nil
}

// capturePlanner plans the system to manifest direction.
type capturePlanner[K comparable, T Diffable[K, T], M any] struct {
	adapter  *Adapter[K, T, M]
	capturer Capturer[T, M]
	writer   ManifestWriter[M]
}

func (p *capturePlanner[K, T, M]) ID() string { return p.adapter.id }

func (p *capturePlanner[K, T, M]) Plan(ctx context.Context, pctx *PlanContext) (Plan, error) {
	if pctx == nil {
		return nil, NewPlanningError("plan context is nil", nil).WithSubsystem(p.adapter.id)
	}
	report, system, _, err := p.adapter.inspect(ctx)
	if err != nil {
		return nil, err
	}

	var labels []string
	for _, item := range report.Untracked {
		if p.adapter.filter.Allows(item) {
			labels = append(labels, fmt.Sprint(item.DiffKey()))
		}
	}
	for _, pair := range report.ToUpdate {
		if p.adapter.filter.Allows(pair.Current) {
			labels = append(labels, fmt.Sprint(pair.Current.DiffKey()))
		}
	}
	if len(labels) == 0 {
		return NewActionPlan(p.adapter.Name(), nil, nil), nil
	}

	captured, err := p.capturer.Capture(system, p.adapter.filter)
	if err != nil {
		return nil, NewPlanningError("failed to capture system state", err).
			WithSubsystem(p.adapter.id).
			WithCode(ErrCodeCaptureFailed)
	}

	writer := p.writer
	action := Action{
		Operation: Operation{
			Verb:      VerbCapture,
			Target:    fmt.Sprintf("%s into %s", summarizeLabels(labels, 5), writer.ManifestPath()),
			Subsystem: p.adapter.id,
		},
		Run: func(ctx context.Context) error {
			return writer.WriteManifest(ctx, captured)
		},
	}
	return NewActionPlan(p.adapter.Name(), []Action{action}, nil), nil
}

// summarizeLabels joins at most limit labels and counts the rest.
func summarizeLabels(labels []string, limit int) string {
	if len(labels) <= limit {
		return strings.Join(labels, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(labels[:limit], ", "), len(labels)-limit)
}
