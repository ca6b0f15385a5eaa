package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/stores"
)

// Color palette of the CLI.
var (
	colorCyan    = lipgloss.Color("14")
	colorGreen   = lipgloss.Color("82")
	colorYellow  = lipgloss.Color("220")
	colorRed     = lipgloss.Color("196")
	colorBoldRed = lipgloss.Color("204")
)

var (
	styleHeading = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Faint(true)
	styleWarn    = lipgloss.NewStyle().Foreground(colorYellow)
	styleFailed  = lipgloss.NewStyle().Bold(true).Foreground(colorBoldRed)
	styleOK      = lipgloss.NewStyle().Foreground(colorGreen)
	styleSummary = lipgloss.NewStyle().Bold(true)
)

// verbStyle colors destructive verbs red and everything else green.
func verbStyle(v engine.OperationVerb) lipgloss.Style {
	if v.IsDestructive() {
		return lipgloss.NewStyle().Foreground(colorRed)
	}
	return lipgloss.NewStyle().Foreground(colorGreen)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPreview renders the plan summary before any mutation.
func printPreview(w io.Writer, direction string, summary engine.PlanSummary) {
	fmt.Fprintln(w, styleSummary.Render(fmt.Sprintf("Planned %s:", direction)))
	for _, sec := range summary.Sections {
		if len(sec.Operations) == 0 && len(sec.Warnings) == 0 {
			continue
		}
		fmt.Fprintln(w, styleHeading.Render(sec.Name))
		for _, op := range sec.Operations {
			fmt.Fprintf(w, "  %s %s\n", verbStyle(op.Verb).Render(string(op.Verb)), op.Target)
		}
		for _, warn := range sec.Warnings {
			fmt.Fprintf(w, "  %s %s\n", styleWarn.Render("warning:"), warn.Message)
		}
	}

	counts := summary.CountByVerb()
	parts := make([]string, 0, len(counts))
	for _, verb := range engine.Verbs() {
		if n := counts[verb]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, verb))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("%d operation(s): %s", summary.ActionCount(), strings.Join(parts, ", "))))
	}
}

// printProgress renders one completed operation.
func printProgress(w io.Writer, p engine.OperationProgress) {
	counter := styleDim.Render(fmt.Sprintf("[%d/%d]", p.Index, p.Total))
	if p.Success {
		fmt.Fprintf(w, "%s %s %s\n", counter, styleOK.Render("ok"), p.Operation)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", counter, styleFailed.Render("failed"), p.Operation)
}

// printReport lists only the failed operations; successes were streamed as progress.
func printReport(w io.Writer, direction string, report *engine.ExecutionReport) {
	failures := report.Failures()
	if len(failures) == 0 {
		fmt.Fprintln(w, styleSummary.Render(fmt.Sprintf("%s complete: %d operation(s) succeeded", direction, report.SuccessCount())))
		return
	}

	fmt.Fprintln(w, styleFailed.Render(fmt.Sprintf("%s finished with %d failure(s):", direction, len(failures))))
	for _, f := range failures {
		fmt.Fprintf(w, "  %s: %s\n", f.Operation, f.Message)
	}
	fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("%d succeeded, %d failed", report.SuccessCount(), len(failures))))
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

// printStatusTable renders one row per subsystem status.
func printStatusTable(w io.Writer, statuses []engine.ComponentStatus) {
	t := newTable(w, table.Row{"Subsystem", "Total", "Synced", "Pending", "To update", "Untracked", "State"})
	for _, s := range statuses {
		state := styleOK.Render("in sync")
		if !s.InSync() {
			state = styleWarn.Render("drift")
		}
		t.AppendRow(table.Row{s.Name, s.Total, s.Synced, s.Pending, s.ToUpdate, s.Untracked, state})
	}
	t.Render()
}

// printDrift renders the items of each drift view.
func printDrift(w io.Writer, views []engine.DriftView) {
	for _, v := range views {
		fmt.Fprintln(w, styleHeading.Render(v.Name))
		if len(v.ToInstall) == 0 && len(v.Untracked) == 0 && len(v.ToUpdate) == 0 {
			fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("  in sync (%d item(s))", v.Synced)))
			continue
		}
		for _, item := range v.ToInstall {
			fmt.Fprintf(w, "  %s %s\n", styleOK.Render("+"), item)
		}
		for _, item := range v.ToUpdate {
			fmt.Fprintf(w, "  %s %s\n", styleWarn.Render("~"), item)
		}
		for _, item := range v.Untracked {
			fmt.Fprintf(w, "  %s %s\n", styleDim.Render("?"), item)
		}
	}
}

// printSubsystems renders the registry with its capability flags.
func printSubsystems(w io.Writer, entries []engine.Entry) {
	t := newTable(w, table.Row{"ID", "Description", "Apply", "Capture"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.ID, e.Description, yesNo(e.SupportsSync), yesNo(e.SupportsCapture)})
	}
	t.Render()
}

// printRuns renders recorded runs, newest first.
func printRuns(w io.Writer, runs []*stores.Run) {
	t := newTable(w, table.Row{"Run", "Direction", "Status", "Started", "Duration", "OK", "Failed"})
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.Direction,
			runStatusStyle(r.Status).Render(string(r.Status)),
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			r.Succeeded,
			r.Failed,
		})
	}
	t.Render()
}

// printEntry renders one recorded run with its operations and events.
func printEntry(w io.Writer, e *stores.Entry) {
	r := e.Run
	fmt.Fprintf(w, "%s %s\n", styleSummary.Render("Run"), r.ID)
	fmt.Fprintf(w, "  direction: %s (%s mode, prune=%v)\n", r.Direction, r.Mode, r.Prune)
	fmt.Fprintf(w, "  status:    %s\n", runStatusStyle(r.Status).Render(string(r.Status)))
	fmt.Fprintf(w, "  started:   %s\n", r.StartedAt.Local().Format(time.DateTime))
	if r.Subsystems != "" {
		fmt.Fprintf(w, "  selected:  %s\n", r.Subsystems)
	}
	if r.Error != nil {
		fmt.Fprintf(w, "  error:     %s\n", styleFailed.Render(*r.Error))
	}

	if len(e.Operations) > 0 {
		t := newTable(w, table.Row{"#", "Subsystem", "Operation", "Result", "Message"})
		for _, op := range e.Operations {
			result, msg := styleOK.Render("ok"), ""
			if !op.Success {
				result = styleFailed.Render("failed")
			}
			if op.Message != nil {
				msg = *op.Message
			}
			t.AppendRow(table.Row{op.Position, op.Subsystem, string(op.Verb) + " " + op.Target, result, msg})
		}
		t.Render()
	}

	for _, ev := range e.Events {
		fmt.Fprintf(w, "  %s %s\n", styleDim.Render(string(ev.Level)), ev.Message)
	}
}

func runStatusStyle(s stores.RunStatus) lipgloss.Style {
	switch s {
	case stores.RunStatusSucceeded, stores.RunStatusNoop:
		return styleOK
	case stores.RunStatusPartial, stores.RunStatusRunning:
		return styleWarn
	default:
		return styleFailed
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
