package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
	"github.com/openfroyo/hostsync/pkg/policy"
	"github.com/openfroyo/hostsync/pkg/settings"
	"github.com/openfroyo/hostsync/pkg/stores"
	"github.com/openfroyo/hostsync/pkg/subsystems"
	"github.com/openfroyo/hostsync/pkg/telemetry"
)

// buildVersion is reported in traces and the metrics service version.
var buildVersion = "dev"

// newRunner creates the command runner of an invocation.
var newRunner = func() executor.Runner {
	return executor.NewSystemRunner()
}

// app holds the collaborators of one command invocation.
type app struct {
	loader   *settings.Loader
	cfg      *settings.Settings
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	store    *manifest.Store
	runner   executor.Runner
	policies *policy.Engine
	db       *stores.SQLiteStore
	history  *stores.History
	out      io.Writer
}

// newApp loads settings and wires telemetry, manifests, policies and the runner.
func newApp(cmd *cobra.Command) (*app, error) {
	loader, err := settings.NewLoader()
	if err != nil {
		return nil, engine.NewValidationError("failed to prepare configuration", err).WithCode(engine.ErrCodeValidation)
	}
	if manifestDir != "" {
		loader.Set("manifestDir", manifestDir)
	}
	if contextMode != "" {
		loader.Set("mode", contextMode)
	}
	if verbose {
		loader.Set("logging.level", "debug")
	}
	loader.Set("serviceVersion", buildVersion)

	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, engine.NewValidationError("failed to load configuration", err).WithCode(engine.ErrCodeValidation)
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, engine.NewValidationError("failed to initialize telemetry", err).WithCode(engine.ErrCodeValidation)
	}
	log.Logger = tel.Logger.Zerolog()

	store, err := manifest.NewStore(cfg.Layers())
	if err != nil {
		return nil, engine.NewValidationError("failed to open manifests", err).WithCode(engine.ErrCodeManifestLoad)
	}

	policies, err := newPolicyEngine(cmd.Context(), cfg, tel.Logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		loader:   loader,
		cfg:      cfg,
		tel:      tel,
		logger:   tel.Logger.NewComponentLogger("cli"),
		store:    store,
		runner:   newRunner(),
		policies: policies,
		out:      cmd.OutOrStdout(),
	}
	zl := a.logger.Zerolog()
	zl.Debug().
		Str("config", loader.ConfigFileUsed()).
		Str("manifest_dir", cfg.ManifestDir).
		Str("mode", cfg.Mode).
		Msg("Configuration loaded")
	return a, nil
}

func newPolicyEngine(ctx context.Context, cfg *settings.Settings, logger *telemetry.Logger) (*policy.Engine, error) {
	e, err := policy.NewEngine(logger.Zerolog())
	if err != nil {
		return nil, engine.NewPlanningError("failed to initialize policies", err).WithCode(engine.ErrCodeInternal)
	}
	if len(cfg.ProtectedUnits) > 0 {
		e.SetProtectedUnits(cfg.ProtectedUnits)
	}
	if err := e.LoadPolicies(ctx, cfg.PolicyDirs); err != nil {
		return nil, engine.NewValidationError("failed to load policies", err).WithCode(engine.ErrCodeValidation)
	}
	for _, name := range cfg.DisabledPolicies {
		if err := e.DisablePolicy(name); err != nil {
			return nil, engine.NewValidationError("invalid disabledPolicies", err).WithCode(engine.ErrCodeValidation)
		}
	}
	return e, nil
}

// options returns the execution options of this invocation.
func (a *app) options(prune bool) engine.ExecutionOptions {
	return engine.ExecutionOptions{
		DryRun: dryRun,
		Mode:   a.cfg.ContextMode(),
		Prune:  prune,
	}
}

// registry builds a fresh subsystem registry.
func (a *app) registry(captureWhere string) (*engine.Registry, error) {
	return subsystems.Builtin(subsystems.Deps{
		Runner:       a.runner,
		Store:        a.store,
		Mode:         a.cfg.ContextMode(),
		ShimDir:      a.cfg.ShimDir,
		CaptureWhere: captureWhere,
	})
}

// openHistory opens the run history. It is a no-op when history is disabled.
func (a *app) openHistory(ctx context.Context) error {
	if a.history != nil || a.cfg.HistoryPath == "" {
		return nil
	}
	db, err := stores.Open(ctx, a.cfg.HistoryPath)
	if err != nil {
		return engine.NewPlanningError("failed to open run history", err).WithCode(engine.ErrCodeInternal)
	}
	a.db = db
	a.history = stores.NewHistory(db)
	return nil
}

// close flushes telemetry and releases the history database.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx), a.tel.Logger.Close())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// withApp runs fn with a fresh app and always closes it. A shutdown error
// is only logged so that it never changes the exit status.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Shutdown incomplete")
		}
	}()

	err = fn(a)
	if err != nil {
		a.tel.Metrics.RecordError(err)
	}
	return err
}
