// Package procutil runs external build tools and captures their output.
//
// Every expensive action in this project is an opaque external command (a
// shell script, fpm, a container engine CLI). The contract with those tools
// is exit-status based, so procutil returns a CommandError that preserves the
// captured stdout/stderr for diagnostics when the status is non-zero.
package procutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/packsmith/internal/ctxlog"
)

// Options adjusts how a command is run.
type Options struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is appended to the current process environment.
	Env []string
	// Stdin is fed to the command when non-nil.
	Stdin []byte
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// CommandError reports a command that started but exited with a non-zero
// status. The captured output travels with the error so callers can surface
// a diagnostic tail.
type CommandError struct {
	Cmd    string
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Run executes name with args, blocking until it exits. Output is captured
// in full; on a non-zero exit the returned error is a *CommandError.
func Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running command.", "cmd", name, "args", args, "dir", opts.Dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	if opts.Stdin != nil {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return res, &CommandError{
			Cmd:    strings.Join(append([]string{name}, args...), " "),
			Stdout: res.Stdout,
			Stderr: res.Stderr,
			Err:    err,
		}
	}
	return res, nil
}

// IsNotFound reports whether an error indicates a missing executable.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	return errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound)
}
