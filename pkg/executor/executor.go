// Package executor runs external commands on behalf of subsystem adapters.
// Adapters never call os/exec directly; they receive a Runner so that tests
// can substitute a RecordingRunner.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Command describes one process invocation.
type Command struct {
	// Name is the program to run.
	Name string `json:"name"`

	// Args are passed to the program as-is, without a shell.
	Args []string `json:"args,omitempty"`

	// Sudo runs the program through sudo.
	Sudo bool `json:"sudo,omitempty"`

	// Dir is the working directory, if set.
	Dir string `json:"dir,omitempty"`

	// Env holds extra environment variables added to the inherited environment.
	Env map[string]string `json:"env,omitempty"`

	// Stdin is written to the process standard input.
	Stdin []byte `json:"-"`
}

// NewCommand creates a command.
func NewCommand(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// WithSudo returns a copy of the command that runs through sudo when elevate is true.
func (c Command) WithSudo(elevate bool) Command {
	c.Sudo = elevate
	return c
}

// Line returns the program and arguments joined by spaces, without sudo.
func (c Command) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// String returns the command line as it would be typed.
func (c Command) String() string {
	if c.Sudo {
		return "sudo " + c.Line()
	}
	return c.Line()
}

// Result is the outcome of a finished process.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Success returns true if the process exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Lines splits stdout into trimmed, non-empty lines.
func (r *Result) Lines() []string {
	var lines []string
	for _, line := range strings.Split(r.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Runner executes commands. Run returns an error only when the process could
// not be started; a non-zero exit is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExitError reports a process that exited with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + firstLine(stderr)
	}
	return msg
}

// IsExitError reports whether err is an ExitError with the given code.
// A negative code matches any exit status.
func IsExitError(err error, code int) bool {
	var e *ExitError
	if !errors.As(err, &e) {
		return false
	}
	return code < 0 || e.ExitCode == code
}

// Check turns a non-zero exit into an ExitError.
func Check(cmd Command, res *Result, err error) (*Result, error) {
	if err != nil {
		return res, fmt.Errorf("%s: %w", cmd, err)
	}
	if !res.Success() {
		return res, &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// RunChecked runs cmd and fails on a non-zero exit.
func RunChecked(ctx context.Context, r Runner, cmd Command) (*Result, error) {
	res, err := r.Run(ctx, cmd)
	return Check(cmd, res, err)
}

// Output runs cmd and returns its standard output.
func Output(ctx context.Context, r Runner, cmd Command) (string, error) {
	res, err := RunChecked(ctx, r, cmd)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// SystemRunner runs commands as local processes.
type SystemRunner struct {
	// SudoPath is the sudo binary used for elevated commands.
	SudoPath string
}

// NewSystemRunner creates a runner for the local host.
func NewSystemRunner() *SystemRunner {
	return &SystemRunner{SudoPath: "sudo"}
}

// Run executes the command and captures its output.
func (r *SystemRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("command is required")
	}

	var cmd *exec.Cmd
	if c.Sudo {
		args := append([]string{c.Name}, c.Args...)
		cmd = exec.CommandContext(ctx, r.SudoPath, args...)
	} else {
		cmd = exec.CommandContext(ctx, c.Name, c.Args...)
	}

	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if len(c.Env) > 0 {
		env := os.Environ()
		keys := make([]string, 0, len(c.Env))
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, fmt.Sprintf("%s=%s", k, c.Env[k]))
		}
		cmd.Env = env
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("command", c.String()).Msg("Running command")

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
