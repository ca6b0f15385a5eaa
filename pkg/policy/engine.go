package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// Engine evaluates Rego policies against plan summaries.
type Engine struct {
	mu             sync.RWMutex
	policies       map[string]*compiledPolicy
	logger         zerolog.Logger
	protectedUnits []string
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	deny     rego.PreparedEvalQuery
	warn     rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine holding the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies:       make(map[string]*compiledPolicy),
		logger:         logger.With().Str("component", "policy-engine").Logger(),
		protectedUnits: append([]string(nil), DefaultProtectedUnits...),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}
	return e, nil
}

// SetProtectedUnits replaces the units the protected-units policy guards.
func (e *Engine) SetProtectedUnits(units []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.protectedUnits = append([]string(nil), units...)
}

// Evaluate runs every enabled policy against input. A policy that fails to
// evaluate is reported as a warning and does not block.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	if input == nil {
		return nil, fmt.Errorf("policy input is nil")
	}
	startTime := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if input.ProtectedUnits == nil {
		input.ProtectedUnits = e.protectedUnits
	}

	result := &Result{Allowed: true}
	for _, cp := range e.sorted() {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		denies, err := e.evaluateRule(ctx, cp, cp.deny, input, SeverityError)
		if err == nil {
			var warns []Violation
			warns, err = e.evaluateRule(ctx, cp, cp.warn, input, SeverityWarning)
			result.Warnings = append(result.Warnings, warns...)
		}
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, Violation{
				Policy:   cp.policy.Name,
				Message:  fmt.Sprintf("evaluation failed: %v", err),
				Severity: SeverityWarning,
			})
			continue
		}
		result.Violations = append(result.Violations, denies...)
	}

	result.Allowed = len(result.Violations) == 0
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Int("operations", len(input.Operations)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Plan policy evaluation completed")

	return result, nil
}

// Guard evaluates the policies for a plan summary. Warnings are returned as a
// trailing "Policy" section of the summary; any deny result is a planning error.
func (e *Engine) Guard(ctx context.Context, direction string, summary engine.PlanSummary, opts engine.ExecutionOptions) (engine.PlanSummary, *Result, error) {
	result, err := e.Evaluate(ctx, NewInput(direction, summary, opts))
	if err != nil {
		return summary, nil, engine.NewPlanningError("policy evaluation failed", err).WithCode(engine.ErrCodeInternal)
	}

	if !result.Allowed {
		msgs := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			msgs = append(msgs, v.String())
		}
		return summary, result, engine.NewPlanningError("plan denied by policy", errors.New(strings.Join(msgs, "; "))).
			WithCode(engine.ErrCodePolicyDenied).
			WithDetail("violations", msgs)
	}

	warnings := make([]engine.Warning, 0, len(result.Warnings))
	for _, v := range result.Warnings {
		warnings = append(warnings, engine.Warning{Subsystem: v.Subsystem, Message: v.String()})
	}
	return summary.WithWarnings("Policy", warnings), result, nil
}

// LoadPolicies loads policy files and adds them to the engine.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies)
}

// AddPolicies compiles policies and adds them, replacing policies of the same name.
func (e *Engine) AddPolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")
	return nil
}

// evaluateRule collects the elements of one rule set of a policy.
func (e *Engine) evaluateRule(ctx context.Context, cp *compiledPolicy, query rego.PreparedEvalQuery, input *Input, severity Severity) ([]Violation, error) {
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		set, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, item := range set {
			violations = append(violations, newViolation(cp.policy, item, severity))
		}
	}
	return violations, nil
}

// newViolation creates a Violation from a rule set element. Elements are
// either strings or objects with a message and an optional subsystem.
func newViolation(policy *Policy, item interface{}, severity Severity) Violation {
	v := Violation{Policy: policy.Name, Severity: severity}
	switch val := item.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sub, ok := val["subsystem"].(string); ok {
			v.Subsystem = sub
		}
	default:
		v.Message = fmt.Sprintf("%v", item)
	}
	return v
}

// compileAndStorePolicy compiles a policy and stores it.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	pkg := module.Package.Path.String()

	prepare := func(rule string) (rego.PreparedEvalQuery, error) {
		r := rego.New(
			rego.Module(policy.Name, policy.Rego),
			rego.Query(pkg+"."+rule),
		)
		return r.PrepareForEval(ctx)
	}

	deny, err := prepare("deny")
	if err != nil {
		return fmt.Errorf("failed to prepare deny query: %w", err)
	}
	warn, err := prepare("warn")
	if err != nil {
		return fmt.Errorf("failed to prepare warn query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		deny:     deny,
		warn:     warn,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", pkg).
		Msg("Policy compiled successfully")
	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtin := GetBuiltinPolicies()
	for i := range builtin {
		if err := e.compileAndStorePolicy(ctx, &builtin[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtin[i].Name, err)
		}
	}
	return nil
}

func (e *Engine) sorted() []*compiledPolicy {
	out := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].policy.Name < out[j].policy.Name })
	return out
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.sorted() {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// ReloadPolicies drops loaded policies and compiles the built-ins plus policies.
func (e *Engine) ReloadPolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	e.policies = make(map[string]*compiledPolicy)
	err := e.loadBuiltinPolicies(ctx)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.AddPolicies(ctx, policies)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Debug().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")
	return nil
}
