// Package engine provides the reconciliation engine of hostsync.
//
// # Overview
//
// hostsync keeps declarative manifests and the live host in sync in both
// directions: apply (manifest to system) and capture (system to manifest).
// Every resource kind goes through the same phases:
//
//  1. Scan - read live state (SystemComponent.ScanSystem)
//  2. Load - read merged desired state (SystemComponent.LoadManifest)
//  3. Diff - compute a DriftReport by identity (ComputeDrift, DriftComparer)
//  4. Plan - turn drift into an immutable Plan (Plannable.Plan)
//  5. Describe - preview the PlanSummary (Plan.Describe)
//  6. Execute - run every operation once, best effort (Plan.Execute)
//
// Steps 1 to 5 never change the system. Dry runs stop after step 5.
//
// # Identity
//
// Resources implement Diffable: a DiffKey identifies the managed thing and
// ContentDiffers compares the rest. DiffCollections partitions two
// collections into added, removed and changed items; DiffStringSets is the
// special case for plain names.
//
// # Plans
//
// A Plan is produced by a Plannable, described any number of times and
// executed once:
//
//	plan, err := adapter.SyncPlannable().Plan(ctx, pctx)
//	if err != nil {
//	    return err // planning error, nothing was changed
//	}
//	sealed := engine.Seal(plan)
//	fmt.Print(sealed.Describe())
//	report, err := sealed.Execute(ctx, engine.NewExecuteContext(opts, onProgress))
//
// Failed operations are recorded in the ExecutionReport and the batch
// continues. CompositePlan aggregates the plans of several subsystems and
// executes them in the order they were added.
//
// # Registry
//
// Registry catalogs subsystems with their capture and sync capabilities and
// resolves the --only and --exclude filters of the CLI. Build one per command.
//
// # Error Classification
//
//   - Planning: current or desired state cannot be read; fatal
//   - Validation: invalid user input such as an unknown subsystem id; fatal
//   - Operation: a single action failed; recorded in the report only
package engine
