package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/stores"
)

const testFlatpakManifest = `apps:
  - id: org.gnome.Boxes
  - id: com.broken.App
`

type testHost struct {
	home        string
	manifestDir string
	runner      *executor.RecordingRunner
}

// newTestHost isolates configuration, history and manifests under a temp
// home and scripts a flatpak installation holding org.old.App.
func newTestHost(t *testing.T) *testHost {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOSTSYNC_CONFIG", filepath.Join(home, "absent.yaml"))
	t.Setenv("HOSTSYNC_SYSTEM_MANIFEST_DIR", filepath.Join(home, "system"))
	t.Setenv("HOSTSYNC_HISTORY_PATH", filepath.Join(home, "history.db"))
	t.Setenv("HOSTSYNC_LOG_LEVEL", "error")

	runner := executor.NewRecordingRunner().
		OnStdout("flatpak list --user", "org.old.App\tflathub\n").
		OnFail("flatpak install --user --noninteractive flathub com.broken.App", 1, "error: No remote refs found")

	prev := newRunner
	newRunner = func() executor.Runner { return runner }
	t.Cleanup(func() { newRunner = prev })

	h := &testHost{
		home:        home,
		manifestDir: filepath.Join(home, ".config", "hostsync", "manifests"),
		runner:      runner,
	}
	h.writeManifest(t, "flatpak.yaml", testFlatpakManifest)
	return h
}

func (h *testHost) writeManifest(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(h.manifestDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(h.manifestDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (h *testHost) readManifest(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.manifestDir, name))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func (h *testHost) installs() []string {
	var lines []string
	for _, line := range h.runner.Lines() {
		if strings.HasPrefix(line, "flatpak install") {
			lines = append(lines, line)
		}
	}
	return lines
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "abc123", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestApply_DryRunExecutesNothing(t *testing.T) {
	h := newTestHost(t)
	before := h.readManifest(t, "flatpak.yaml")

	out, err := execute(t, "apply", "--dry-run", "--only", "flatpak")
	if err != nil {
		t.Fatalf("apply --dry-run failed: %v", err)
	}

	for _, want := range []string{"install org.gnome.Boxes", "install com.broken.App", "Dry run"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if got := h.installs(); len(got) != 0 {
		t.Errorf("dry run executed %v", got)
	}
	if after := h.readManifest(t, "flatpak.yaml"); after != before {
		t.Error("dry run changed the manifest")
	}
	if _, err := os.Stat(filepath.Join(h.home, "history.db")); !os.IsNotExist(err) {
		t.Error("dry run must not record a run")
	}
}

func TestApply_PartialFailureIsNotAnError(t *testing.T) {
	h := newTestHost(t)

	out, err := execute(t, "apply", "--only", "flatpak")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if got := h.installs(); len(got) != 2 {
		t.Fatalf("expected both installs attempted, got %v", got)
	}
	if !strings.Contains(out, "1 failure(s)") || !strings.Contains(out, "No remote refs found") {
		t.Errorf("expected failure report, got:\n%s", out)
	}
	if !strings.Contains(out, "[1/2]") || !strings.Contains(out, "[2/2]") {
		t.Errorf("expected progress lines, got:\n%s", out)
	}

	out, err = execute(t, "--json", "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var runs []stores.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	run := runs[0]
	if run.Direction != "apply" || run.Status != stores.RunStatusPartial || run.Succeeded != 1 || run.Failed != 1 {
		t.Errorf("unexpected run %+v", run)
	}
	if run.Subsystems != "flatpak" {
		t.Errorf("expected selection recorded, got %q", run.Subsystems)
	}

	out, err = execute(t, "history", run.ID[:8])
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(out, "com.broken.App") {
		t.Errorf("expected operations in run details, got:\n%s", out)
	}
}

func TestApply_JSONReport(t *testing.T) {
	newTestHost(t)

	out, err := execute(t, "--json", "apply", "--only", "flatpak")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	var res struct {
		Direction string                 `json:"direction"`
		RunID     string                 `json:"run_id"`
		Status    engine.RunStatus       `json:"status"`
		Plan      engine.PlanSummary     `json:"plan"`
		Report    engine.ExecutionReport `json:"report"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Direction != "apply" || res.RunID == "" || res.Status != engine.RunStatusPartial {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Plan.ActionCount() != 2 || len(res.Report.Results) != 2 {
		t.Errorf("expected 2 planned and 2 executed, got %d and %d", res.Plan.ActionCount(), len(res.Report.Results))
	}
}

func TestApply_FilterErrors(t *testing.T) {
	newTestHost(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown only", []string{"apply", "--only", "nosuch"}},
		{"unknown exclude", []string{"apply", "--exclude", "nosuch"}},
		{"capture unsupported", []string{"capture", "--only", "shim"}},
		{"bad mode", []string{"--mode", "root", "status"}},
		{"bad where", []string{"capture", "--where", "remote ==", "--only", "flatpak"}},
		{"unknown flag", []string{"apply", "--frobnicate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := ExitCode(err); code != ExitValidation {
				t.Errorf("expected exit code %d, got %d (%v)", ExitValidation, code, err)
			}
		})
	}
}

func TestApply_ExcludeWinsOverOnly(t *testing.T) {
	h := newTestHost(t)

	out, err := execute(t, "apply", "--only", "flatpak,extension", "--exclude", "flatpak")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if strings.Contains(out, "org.gnome.Boxes") {
		t.Errorf("excluded subsystem was planned:\n%s", out)
	}
	for _, line := range h.runner.Lines() {
		if strings.HasPrefix(line, "flatpak") {
			t.Errorf("excluded subsystem was scanned: %s", line)
		}
	}
}

func TestCapture_WritesUserManifest(t *testing.T) {
	h := newTestHost(t)

	out, err := execute(t, "capture", "--only", "flatpak", "--dry-run")
	if err != nil {
		t.Fatalf("capture --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "org.old.App") {
		t.Errorf("expected captured app in preview, got:\n%s", out)
	}
	if strings.Contains(h.readManifest(t, "flatpak.yaml"), "org.old.App") {
		t.Fatal("dry run wrote the manifest")
	}

	if _, err := execute(t, "capture", "--only", "flatpak"); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	written := h.readManifest(t, "flatpak.yaml")
	for _, id := range []string{"org.old.App", "org.gnome.Boxes", "com.broken.App"} {
		if !strings.Contains(written, id) {
			t.Errorf("expected %s in captured manifest:\n%s", id, written)
		}
	}
}

func TestCapture_WhereFilter(t *testing.T) {
	h := newTestHost(t)

	out, err := execute(t, "capture", "--only", "flatpak", "--where", `remote == "fedora"`)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if !strings.Contains(out, "Nothing to do") {
		t.Errorf("expected nothing to capture, got:\n%s", out)
	}
	if strings.Contains(h.readManifest(t, "flatpak.yaml"), "org.old.App") {
		t.Error("filtered item was captured")
	}
}

func TestStatus_JSON(t *testing.T) {
	newTestHost(t)

	out, err := execute(t, "--json", "status", "--only", "flatpak")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var statuses []engine.ComponentStatus
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	s := statuses[0]
	if s.Total != 2 || s.Pending != 2 || s.Untracked != 1 || s.Synced != 0 {
		t.Errorf("unexpected status %+v", s)
	}
}

func TestDiff(t *testing.T) {
	newTestHost(t)

	out, err := execute(t, "diff", "--only", "flatpak")
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	for _, want := range []string{"+ org.gnome.Boxes", "+ com.broken.App", "? org.old.App"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSubsystems_JSON(t *testing.T) {
	newTestHost(t)

	out, err := execute(t, "--json", "subsystems")
	if err != nil {
		t.Fatalf("subsystems failed: %v", err)
	}
	var entries []engine.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	ids := make(map[string]engine.Entry)
	for _, e := range entries {
		ids[e.ID] = e
	}
	for _, id := range []string{"package", "flatpak", "extension", "service", "setting", "shim"} {
		if _, ok := ids[id]; !ok {
			t.Errorf("expected subsystem %s", id)
		}
	}
	if ids["shim"].SupportsCapture || !ids["shim"].SupportsSync {
		t.Errorf("unexpected shim capabilities %+v", ids["shim"])
	}
}

func TestValidate(t *testing.T) {
	h := newTestHost(t)

	out, err := execute(t, "validate")
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 manifest file(s) valid") {
		t.Errorf("unexpected output:\n%s", out)
	}

	h.writeManifest(t, "flatpak.yaml", "apps:\n  - remote: flathub\n")
	out, err = execute(t, "validate")
	if err == nil {
		t.Fatalf("expected validation error, got:\n%s", out)
	}
	if ExitCode(err) != ExitValidation {
		t.Errorf("expected exit code %d, got %d", ExitValidation, ExitCode(err))
	}
	var ee *engine.EngineError
	if !errors.As(err, &ee) || ee.Code != engine.ErrCodeManifestInvalid {
		t.Errorf("expected %s, got %v", engine.ErrCodeManifestInvalid, err)
	}
}

func TestHistory_Empty(t *testing.T) {
	newTestHost(t)

	out, err := execute(t, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "history", "deadbeef"); ExitCode(err) != ExitValidation {
		t.Errorf("expected validation error for unknown run, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "hostsync test") || !strings.Contains(out, "abc123") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"validation", engine.NewValidationError("bad", nil), ExitValidation},
		{"planning", engine.NewPlanningError("scan failed", nil), ExitPlanning},
		{"wrapped validation", errors.Join(errors.New("context"), engine.NewValidationError("bad", nil)), ExitValidation},
		{"plain", errors.New("boom"), ExitPlanning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRun_SealedPlanExecutesPreviewOnce(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	cmd := newRootCommand("test", "abc123", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(ctx)

	a, err := newApp(cmd)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	req := runRequest{direction: "apply", capability: engine.CapabilitySync, only: []string{"flatpak"}}
	reg, err := a.registry("")
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	entries, err := reg.Select(req.capability, req.only, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	opts := engine.ExecutionOptions{Mode: a.cfg.ContextMode()}
	plan, summary, err := a.plan(ctx, req, entries, opts)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(h.installs()) != 0 {
		t.Fatal("planning must not execute anything")
	}

	report, _, err := a.execute(ctx, req, plan, summary, []string{"flatpak"}, opts)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	previewed := summary.Operations()
	if len(report.Results) != len(previewed) {
		t.Fatalf("expected %d results, got %d", len(previewed), len(report.Results))
	}
	for i, res := range report.Results {
		if res.Operation.String() != previewed[i].String() {
			t.Errorf("result %d: executed %q, previewed %q", i, res.Operation, previewed[i])
		}
	}
	if !plan.Executed() {
		t.Error("expected sealed plan to be marked executed")
	}

	if _, _, err := a.execute(ctx, req, plan, summary, nil, opts); !errors.Is(err, engine.ErrAlreadyExecuted) {
		t.Errorf("expected ErrAlreadyExecuted, got %v", err)
	}
	if got := h.installs(); len(got) != 2 {
		t.Errorf("expected each install to run once, got %v", got)
	}
}
