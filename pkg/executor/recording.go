package executor

import (
	"context"
	"strings"
	"sync"
)

// Responder produces the result for a matched command.
type Responder func(cmd Command) (*Result, error)

type rule struct {
	prefix  string
	respond Responder
}

// RecordingRunner is a scripted Runner for tests. It records every command
// and answers with the rule whose prefix is the longest match for the
// command line. Unmatched commands succeed with empty output.
type RecordingRunner struct {
	mu    sync.Mutex
	rules []rule
	calls []Command
}

// NewRecordingRunner creates an empty recording runner.
func NewRecordingRunner() *RecordingRunner {
	return &RecordingRunner{}
}

// On answers commands whose line starts with prefix with a fixed result.
func (r *RecordingRunner) On(prefix string, res Result) *RecordingRunner {
	return r.OnFunc(prefix, func(Command) (*Result, error) {
		out := res
		return &out, nil
	})
}

// OnStdout answers commands matching prefix with the given output and exit status zero.
func (r *RecordingRunner) OnStdout(prefix, stdout string) *RecordingRunner {
	return r.On(prefix, Result{Stdout: stdout})
}

// OnFail answers commands matching prefix with the given exit code and stderr.
func (r *RecordingRunner) OnFail(prefix string, code int, stderr string) *RecordingRunner {
	return r.On(prefix, Result{ExitCode: code, Stderr: stderr})
}

// OnFunc answers commands matching prefix with fn.
func (r *RecordingRunner) OnFunc(prefix string, fn Responder) *RecordingRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{prefix: prefix, respond: fn})
	return r
}

// Run records cmd and returns the scripted response.
func (r *RecordingRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	var best *rule
	line := cmd.Line()
	for i := range r.rules {
		rl := &r.rules[i]
		if !strings.HasPrefix(line, rl.prefix) {
			continue
		}
		if best == nil || len(rl.prefix) >= len(best.prefix) {
			best = rl
		}
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if best == nil {
		return &Result{}, nil
	}
	return best.respond(cmd)
}

// Calls returns the recorded commands in order.
func (r *RecordingRunner) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}

// Lines returns the recorded command lines, including sudo.
func (r *RecordingRunner) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Reset forgets recorded calls but keeps the rules.
func (r *RecordingRunner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
