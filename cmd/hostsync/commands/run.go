package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/telemetry"
)

// runRequest describes one apply or capture invocation.
type runRequest struct {
	direction  string
	capability engine.Capability
	only       []string
	exclude    []string
	where      string
	prune      bool
}

// runResult is the JSON rendering of a run.
type runResult struct {
	Direction string                  `json:"direction"`
	RunID     string                  `json:"run_id,omitempty"`
	Options   engine.ExecutionOptions `json:"options"`
	Plan      engine.PlanSummary      `json:"plan"`
	Report    *engine.ExecutionReport `json:"report,omitempty"`
	Status    engine.RunStatus        `json:"status,omitempty"`
}

// planAndExecute plans every selected subsystem, guards the combined plan
// with the policy engine, prints the preview and, unless this is a dry run,
// executes it once.
func (a *app) planAndExecute(ctx context.Context, req runRequest) error {
	opts := a.options(req.prune)

	ctx, span := a.tel.Tracer.StartRunSpan(ctx, req.direction, opts)
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	reg, err := a.registry(req.where)
	if err != nil {
		spanErr = err
		return err
	}
	entries, err := reg.Select(req.capability, req.only, req.exclude)
	if err != nil {
		spanErr = err
		return err
	}

	plan, summary, err := a.plan(ctx, req, entries, opts)
	if err != nil {
		spanErr = err
		return err
	}

	result := runResult{Direction: req.direction, Options: opts, Plan: summary}
	if !jsonOutput {
		printPreview(a.out, req.direction, summary)
	}

	if plan.IsEmpty() {
		if jsonOutput {
			return printJSON(a.out, result)
		}
		fmt.Fprintln(a.out, styleDim.Render("Nothing to do."))
		return nil
	}
	if opts.DryRun {
		if jsonOutput {
			return printJSON(a.out, result)
		}
		fmt.Fprintln(a.out, styleDim.Render("Dry run: no changes made."))
		return nil
	}

	report, runID, err := a.execute(ctx, req, plan, summary, selectedIDs(req, entries), opts)
	if err != nil {
		spanErr = err
		return err
	}
	span.SetAttributes(telemetry.AttrRunID.String(runID), telemetry.AttrRunStatus.String(string(report.Status())))

	if jsonOutput {
		result.RunID = runID
		result.Report = report
		result.Status = report.Status()
		return printJSON(a.out, result)
	}
	printReport(a.out, req.direction, report)
	return nil
}

// plan builds and seals the composite plan of the selected entries. Any
// planning failure aborts the command before anything runs. The returned
// summary is the sealed one plus policy warnings.
func (a *app) plan(ctx context.Context, req runRequest, entries []engine.Entry, opts engine.ExecutionOptions) (*engine.Planned, engine.PlanSummary, error) {
	ctx, span := a.tel.Tracer.StartPhaseSpan(ctx, "plan")

	pctx, err := engine.NewPlanContext(a.cfg.ManifestDir, opts)
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, engine.PlanSummary{}, err
	}

	composite := engine.NewCompositePlan()
	for _, e := range entries {
		plannable := e.Subsystem.SyncPlannable()
		if req.capability == engine.CapabilityCapture {
			plannable = e.Subsystem.CapturePlannable()
		}
		if plannable == nil {
			continue
		}

		a.logger.WithSubsystem(e.ID).Debug("Planning")
		p, err := plannable.Plan(ctx, pctx)
		if err != nil {
			telemetry.EndSpan(span, err)
			return nil, engine.PlanSummary{}, err
		}
		composite.Add(p)
	}

	sealed := engine.Seal(composite)
	summary, _, err := a.policies.Guard(ctx, req.direction, sealed.Describe(), opts)
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, summary, err
	}
	return sealed, summary, nil
}

// execute runs the sealed plan, recording it in the run history.
func (a *app) execute(ctx context.Context, req runRequest, plan *engine.Planned, summary engine.PlanSummary, ids []string, opts engine.ExecutionOptions) (*engine.ExecutionReport, string, error) {
	if plan.Executed() {
		return nil, "", engine.NewPlanningError("plan cannot be executed twice", engine.ErrAlreadyExecuted).WithCode(engine.ErrCodeInternal)
	}
	if err := a.openHistory(ctx); err != nil {
		return nil, "", err
	}

	runID := uuid.New().String()
	if a.history != nil {
		id, err := a.history.Begin(ctx, req.direction, ids, opts, summary)
		if err != nil {
			return nil, "", engine.NewPlanningError("failed to record run", err).WithCode(engine.ErrCodeInternal)
		}
		runID = id
	}
	logger := a.logger.WithRunID(runID)
	logger.Infof("Executing %d operation(s)", summary.ActionCount())

	ctx, obs := a.tel.ObserveRun(ctx, runID, req.direction, summary)
	ectx := engine.NewExecuteContext(opts, func(p engine.OperationProgress) {
		obs.Progress(p)
		if !jsonOutput {
			printProgress(a.out, p)
		}
	})
	ectx.Total = summary.ActionCount()

	report, err := plan.Execute(ctx, ectx)
	obs.Finish(report, err)

	if err != nil {
		if a.history != nil {
			if herr := a.history.Abort(ctx, runID, err); herr != nil {
				logger.WithError(herr).Warn("Failed to record aborted run")
			}
		}
		return nil, runID, err
	}

	if a.history != nil {
		if herr := a.history.Finish(ctx, runID, report); herr != nil {
			logger.WithError(herr).Warn("Failed to record run outcome")
		}
		if a.cfg.HistoryKeep > 0 {
			if pruned, herr := a.history.Retain(ctx, a.cfg.HistoryKeep); herr != nil {
				logger.WithError(herr).Warn("Failed to prune run history")
			} else if pruned > 0 {
				logger.Debugf("Pruned %d old run(s)", pruned)
			}
		}
	}
	return report, runID, nil
}

// selectedIDs returns the ids a run was restricted to, or nil for all.
func selectedIDs(req runRequest, entries []engine.Entry) []string {
	if len(req.only) == 0 && len(req.exclude) == 0 {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
