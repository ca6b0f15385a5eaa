package engine_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// app is a minimal resource keyed by id whose content is its version.
type app struct {
	id      string
	version string
}

func (a app) DiffKey() string                { return a.id }
func (a app) ContentDiffers(other app) bool { return a.version != other.version }

// Example_diff shows how two collections are compared by identity.
func Example_diff() {
	old := []app{{"org.gnome.Boxes", "47"}, {"org.old.App", "1"}}
	next := []app{{"org.gnome.Boxes", "48"}, {"org.new.App", "1"}}

	diff := engine.DiffCollections[string](old, next)
	fmt.Println("added:", diff.Added[0].id)
	fmt.Println("removed:", diff.Removed[0].id)
	fmt.Println("changed:", diff.Changed[0].From.version, "->", diff.Changed[0].To.version)

	names := engine.DiffStringSets([]string{"a", "b"}, []string{"b", "c"})
	fmt.Println(names.Added, names.Removed, len(names.Changed))
	// Output:
	// added: org.new.App
	// removed: org.old.App
	// changed: 47 -> 48
	// [c] [a] 0
}

// Example_drift shows the drift of a live system against a manifest.
func Example_drift() {
	system := []app{{"A", "1"}, {"B", "1"}}
	manifest := []app{{"A", "1"}, {"C", "1"}}

	report := engine.ComputeDrift[string](system, manifest)
	status := engine.NewComponentStatus("Apps", report)
	fmt.Printf("total=%d synced=%d pending=%d untracked=%d in_sync=%t\n",
		status.Total, status.Synced, status.Pending, status.Untracked, status.InSync())
	// Output: total=2 synced=1 pending=1 untracked=1 in_sync=false
}

// Example_compositePlan shows best-effort execution of combined plans.
func Example_compositePlan() {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("remote not configured") }

	flatpak := engine.NewActionPlan("Flatpak", []engine.Action{
		{Operation: engine.Operation{Verb: engine.VerbInstall, Target: "org.gnome.Boxes", Subsystem: "flatpak"}, Run: fail},
	}, nil)
	services := engine.NewActionPlan("Services", []engine.Action{
		{Operation: engine.Operation{Verb: engine.VerbEnable, Target: "sshd.service", Subsystem: "service"}, Run: ok},
	}, nil)

	plan := engine.NewCompositePlan(engine.NewActionPlan("Shims", nil, nil), flatpak, services)
	fmt.Print(plan.Describe())

	ectx := engine.NewExecuteContext(engine.ExecutionOptions{}, func(p engine.OperationProgress) {
		fmt.Printf("[%d/%d] %s success=%t\n", p.Index, p.Total, p.Operation, p.Success)
	})
	report, err := plan.Execute(context.Background(), ectx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(report.Status(), report.FailureCount())
	// Output:
	// Flatpak:
	//   install org.gnome.Boxes
	// Services:
	//   enable sshd.service
	// [1/2] install org.gnome.Boxes success=false
	// [2/2] enable sshd.service success=true
	// partial 1
}

// Example_errorHandling shows how the command layer tells fatal errors apart.
func Example_errorHandling() {
	err := fmt.Errorf("apply: %w", engine.NewValidationError("unknown subsystem \"appimage\" for --only", nil).
		WithCode(engine.ErrCodeUnknownSubsystem))

	fmt.Println(engine.IsValidation(err), engine.IsFatal(err))

	var engineErr *engine.EngineError
	if errors.As(err, &engineErr) {
		fmt.Println(engineErr.Code)
	}
	// Output:
	// true true
	// UNKNOWN_SUBSYSTEM
}

// Example_parseIDList shows how --only and --exclude values are normalized.
func Example_parseIDList() {
	only := engine.ParseIDList("shim, Extension", "GNOME_Settings")
	fmt.Println(only)
	fmt.Println(engine.EffectiveSelection(only, []string{"extension"}))
	// Output:
	// [shim Extension GNOME_Settings]
	// [shim gnomesettings]
}
