// Package telemetry provides observability for hostsync runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// Prometheus metrics and an in-process progress event publisher:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, obs := tel.ObserveRun(ctx, runID, "apply", summary)
//	report, err := plan.Execute(ctx, engine.NewExecuteContext(opts, obs.Progress))
//	obs.Finish(report, err)
//
// Metrics are short-lived for one-shot commands, so they are written to a
// node_exporter textfile on shutdown. The watch command additionally serves
// them over HTTP.
package telemetry
