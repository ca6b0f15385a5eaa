package subsystems

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// fakeFlatpak is an in-memory flatpak user installation.
type fakeFlatpak struct {
	mu   sync.Mutex
	apps []manifest.FlatpakApp
}

func (f *fakeFlatpak) attach(r *executor.RecordingRunner) {
	r.OnFunc("flatpak list --user", func(executor.Command) (*executor.Result, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var b strings.Builder
		for _, a := range f.apps {
			fmt.Fprintf(&b, "%s\t%s\n", a.ID, a.Remote)
		}
		return &executor.Result{Stdout: b.String()}, nil
	})
	r.OnFunc("flatpak install --user", func(cmd executor.Command) (*executor.Result, error) {
		n := len(cmd.Args)
		f.remove(cmd.Args[n-1])
		f.mu.Lock()
		f.apps = append(f.apps, manifest.FlatpakApp{ID: cmd.Args[n-1], Remote: cmd.Args[n-2]})
		f.mu.Unlock()
		return &executor.Result{}, nil
	})
	r.OnFunc("flatpak uninstall --user", func(cmd executor.Command) (*executor.Result, error) {
		f.remove(cmd.Args[len(cmd.Args)-1])
		return &executor.Result{}, nil
	})
}

func (f *fakeFlatpak) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.apps[:0]
	for _, a := range f.apps {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	f.apps = kept
}

func (f *fakeFlatpak) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, a := range f.apps {
		ids = append(ids, a.ID)
	}
	return ids
}

const flatpakManifest = `apps:
  - id: org.gnome.Boxes
  - id: com.example.Tool
    remote: fedora
`

func TestFlatpak_ApplyThenReplanIsEmpty(t *testing.T) {
	env := newTestEnv(t, engine.ContextModeUser)
	host := &fakeFlatpak{apps: []manifest.FlatpakApp{
		{ID: "org.gnome.Boxes", Remote: "flathub"},
		{ID: "org.old.App", Remote: "flathub"},
	}}
	host.attach(env.runner)
	env.writeUser(t, manifest.KindFlatpak, flatpakManifest)

	sub := env.subsystem(t, "flatpak")
	pctx := planContext(t, engine.ContextModeUser, true)

	plan := planSync(t, sub, pctx)
	want := []string{"install com.example.Tool", "remove org.old.App"}
	if got := targets(plan.Describe()); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	report := execute(t, plan, pctx)
	if report.FailureCount() != 0 || report.SuccessCount() != 2 {
		t.Fatalf("Expected 2 successes, got %+v", report.Results)
	}
	if !hasLine(env.runner.Lines(), "flatpak install --user --noninteractive fedora com.example.Tool") {
		t.Errorf("Expected install command, got %v", env.runner.Lines())
	}

	again := planSync(t, sub, pctx)
	if !again.IsEmpty() {
		t.Errorf("Expected empty plan after apply, got %v", targets(again.Describe()))
	}
	if got := host.ids(); !reflect.DeepEqual(got, []string{"org.gnome.Boxes", "com.example.Tool"}) {
		t.Errorf("Unexpected installed apps %v", got)
	}
}

func TestFlatpak_PlanIsPure(t *testing.T) {
	env := newTestEnv(t, engine.ContextModeUser)
	host := &fakeFlatpak{apps: []manifest.FlatpakApp{{ID: "org.old.App", Remote: "flathub"}}}
	host.attach(env.runner)
	path := env.writeUser(t, manifest.KindFlatpak, flatpakManifest)
	before, _ := os.ReadFile(path)

	sub := env.subsystem(t, "flatpak")
	plan := planSync(t, sub, planContext(t, engine.ContextModeUser, true))
	_ = plan.Describe()
	_ = plan.Describe()

	for _, line := range env.runner.Lines() {
		if !strings.HasPrefix(line, "flatpak list") {
			t.Errorf("Planning ran a mutating command: %s", line)
		}
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("Planning changed the manifest")
	}
	if got := host.ids(); !reflect.DeepEqual(got, []string{"org.old.App"}) {
		t.Errorf("Planning changed the system: %v", got)
	}
}

func TestFlatpak_UntrackedWarnsWithoutPrune(t *testing.T) {
	env := newTestEnv(t, engine.ContextModeUser)
	host := &fakeFlatpak{apps: []manifest.FlatpakApp{{ID: "org.old.App", Remote: "flathub"}}}
	host.attach(env.runner)

	plan := planSync(t, env.subsystem(t, "flatpak"), planContext(t, engine.ContextModeUser, false))
	if !plan.IsEmpty() {
		t.Errorf("Expected no operations, got %v", targets(plan.Describe()))
	}
	warnings := plan.Describe().Warnings()
	if len(warnings) != 1 || warnings[0].Subsystem != "flatpak" {
		t.Errorf("Expected one flatpak warning, got %v", warnings)
	}
}

func TestFlatpak_RemoteMismatchReinstalls(t *testing.T) {
	env := newTestEnv(t, engine.ContextModeHost)
	env.runner.OnStdout("flatpak list --system", "com.example.Tool\tflathub\n")
	env.writeUser(t, manifest.KindFlatpak, "apps:\n  - id: com.example.Tool\n    remote: fedora\n")

	pctx := planContext(t, engine.ContextModeHost, false)
	plan := planSync(t, env.subsystem(t, "flatpak"), pctx)
	ops := plan.Describe().Operations()
	if len(ops) != 1 || ops[0].Verb != engine.VerbUpdate {
		t.Fatalf("Expected one update, got %v", ops)
	}

	execute(t, plan, pctx)
	want := "sudo flatpak install --system --noninteractive --reinstall fedora com.example.Tool"
	if !hasLine(env.runner.Lines(), want) {
		t.Errorf("Expected %q, got %v", want, env.runner.Lines())
	}
}

func TestFlatpak_CaptureRecordsUntracked(t *testing.T) {
	env := newTestEnv(t, engine.ContextModeUser)
	host := &fakeFlatpak{apps: []manifest.FlatpakApp{
		{ID: "org.gnome.Boxes", Remote: "flathub"},
		{ID: "com.example.Tool", Remote: "fedora"},
	}}
	host.attach(env.runner)
	env.writeSystem(t, manifest.KindFlatpak, "apps:\n  - id: org.gnome.Boxes\n")

	sub := env.subsystem(t, "flatpak")
	pctx := planContext(t, engine.ContextModeUser, false)

	plan, err := sub.CapturePlannable().Plan(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	ops := plan.Describe().Operations()
	if len(ops) != 1 || ops[0].Verb != engine.VerbCapture {
		t.Fatalf("Expected one capture operation, got %v", ops)
	}
	if !strings.HasPrefix(ops[0].Target, "com.example.Tool into ") {
		t.Errorf("Unexpected target %q", ops[0].Target)
	}

	execute(t, plan, pctx)

	data, err := os.ReadFile(env.layers.UserPath(manifest.KindFlatpak))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "org.gnome.Boxes") {
		t.Errorf("Expected system layer item to stay out of the user layer:\n%s", data)
	}
	if !strings.Contains(string(data), "com.example.Tool") {
		t.Errorf("Expected captured app in user layer:\n%s", data)
	}

	again, err := sub.CapturePlannable().Plan(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !again.IsEmpty() {
		t.Errorf("Expected capture to be idempotent, got %v", targets(again.Describe()))
	}
}

func TestFlatpak_CaptureWhere(t *testing.T) {
	env := newTestEnv(t, engine.ContextModeUser)
	env.deps.CaptureWhere = `remote == "fedora"`
	host := &fakeFlatpak{apps: []manifest.FlatpakApp{
		{ID: "org.gnome.Boxes", Remote: "flathub"},
		{ID: "com.example.Tool", Remote: "fedora"},
	}}
	host.attach(env.runner)

	pctx := planContext(t, engine.ContextModeUser, false)
	plan, err := env.subsystem(t, "flatpak").CapturePlannable().Plan(context.Background(), pctx)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	execute(t, plan, pctx)

	store := env.deps.Store
	doc, err := manifest.Load[manifest.Flatpak](store, manifest.KindFlatpak)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []manifest.FlatpakApp{{ID: "com.example.Tool", Remote: "fedora"}}
	if !reflect.DeepEqual(doc.User.Apps, want) {
		t.Errorf("Expected %v, got %v", want, doc.User.Apps)
	}
}

func TestFlatpak_ScanFailureIsPlanningError(t *testing.T) {
	env := newTestEnv(t, engine.ContextModeUser)
	env.runner.OnFail("flatpak list", 1, "error: no installation")

	_, err := env.subsystem(t, "flatpak").SyncPlannable().Plan(context.Background(), planContext(t, engine.ContextModeUser, false))
	if !engine.IsPlanning(err) {
		t.Errorf("Expected planning error, got %v", err)
	}
}
