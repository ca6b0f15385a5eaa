package engine

import "context"

// SystemComponent is the adapter contract for one resource kind.
// The engine calls these methods and only these.
type SystemComponent[K comparable, T Diffable[K, T], M any] interface {
	// Name returns the display name used in reports.
	Name() string

	// ScanSystem reads live state. It fails only on I/O or parse errors from
	// the underlying tool, never because of drift.
	ScanSystem(ctx context.Context) ([]T, error)

	// LoadManifest loads the merged desired state.
	LoadManifest(ctx context.Context) (M, error)

	// ManifestItems projects a manifest into diffable items.
	ManifestItems(manifest M) []T
}

// DriftComparer is implemented by components that compare more than presence,
// for example an installed but disabled extension.
type DriftComparer[T any] interface {
	Diff(system, manifest []T) DriftReport[T]
}

// CaptureFilter selects which system items are recorded by a capture.
// A nil filter selects everything.
type CaptureFilter[T any] func(item T) bool

// Allows reports whether the filter selects item.
func (f CaptureFilter[T]) Allows(item T) bool {
	return f == nil || f(item)
}

// Capturer is implemented by components with a system to manifest direction.
// Derived resource kinds do not implement it.
type Capturer[T any, M any] interface {
	// Capture computes the manifest that records system, restricted by filter.
	Capture(system []T, filter CaptureFilter[T]) (M, error)
}

// ManifestWriter persists a captured manifest.
type ManifestWriter[M any] interface {
	// ManifestPath returns where WriteManifest writes.
	ManifestPath() string

	// WriteManifest replaces the writable manifest layer with manifest.
	WriteManifest(ctx context.Context, manifest M) error
}

// Reconciler turns drift into executable actions. It must not mutate anything:
// the returned actions capture the work for later execution.
type Reconciler[T any] interface {
	Reconcile(pctx *PlanContext, report DriftReport[T]) ([]Action, []Warning)
}

// Plannable produces plans. Planning reads state and never changes it.
type Plannable interface {
	// ID returns the normalized subsystem id.
	ID() string

	// Plan computes the work needed. It fails only when current or desired
	// state cannot be read.
	Plan(ctx context.Context, pctx *PlanContext) (Plan, error)
}

// Plan is an immutable description of work that can be executed once.
type Plan interface {
	// Describe returns the planned operations. It returns the same summary
	// on every call.
	Describe() PlanSummary

	// IsEmpty returns true if the plan contains no operations.
	IsEmpty() bool

	// Execute performs every operation in summary order. Individual failures
	// are recorded in the report; the returned error is reserved for
	// failures that make continuing meaningless.
	Execute(ctx context.Context, ectx *ExecuteContext) (*ExecutionReport, error)
}

// Inspector reports drift without building a plan.
type Inspector interface {
	Status(ctx context.Context) (ComponentStatus, error)
	Drift(ctx context.Context) (DriftView, error)
}

// Subsystem is the type-erased view of one resource kind held by the registry.
type Subsystem interface {
	Inspector

	// ID returns the normalized subsystem id.
	ID() string

	// Name returns the display name.
	Name() string

	// SyncPlannable returns the apply planner, or nil if sync is unsupported.
	SyncPlannable() Plannable

	// CapturePlannable returns the capture planner, or nil if capture is unsupported.
	CapturePlannable() Plannable
}
