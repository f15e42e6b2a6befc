// Package runner executes the external producer commands (style compilers,
// bundlers, image optimizers) configured to run before revisioning.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/albertocavalcante/assetrev/internal/log"
)

// ErrEmptyCommand is returned for a blank command line.
var ErrEmptyCommand = errors.New("empty command")

// CommandError reports a producer command that exited unsuccessfully.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Runner runs shell command lines in a working directory.
type Runner struct {
	dir    string
	shell  []string
	stdout io.Writer
	stderr io.Writer
	env    []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the working directory for commands.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithShell overrides the shell used to interpret command lines.
// The command line is appended as the final argument.
func WithShell(shell ...string) Option {
	return func(r *Runner) {
		r.shell = shell
	}
}

// WithOutput redirects command stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// New creates a new Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{
		shell:  defaultShell(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one command line and returns after it completes.
func (r *Runner) Run(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return ErrEmptyCommand
	}

	cmd := r.command(ctx, command)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	log.Component("runner").Info("running producer", "command", command, "dir", r.dir)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &CommandError{Command: command, Err: err}
	}
	return nil
}

// RunAll executes commands in order, stopping at the first failure.
func (r *Runner) RunAll(ctx context.Context, commands []string) error {
	for _, c := range commands {
		if err := r.Run(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// RunWithOutput executes a command line and captures its combined output.
func (r *Runner) RunWithOutput(ctx context.Context, command string) ([]byte, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}

	var buf bytes.Buffer
	cmd := r.command(ctx, command)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.Bytes(), &CommandError{Command: command, Err: err}
	}
	return buf.Bytes(), nil
}

func (r *Runner) command(ctx context.Context, command string) *exec.Cmd {
	args := append(append([]string{}, r.shell[1:]...), command)
	cmd := exec.CommandContext(ctx, r.shell[0], args...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	return cmd
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}
