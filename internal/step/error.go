package step

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/packsmith/internal/procutil"
)

// DefaultErrorTailLines is how many trailing lines of captured output a
// RunError reports.
const DefaultErrorTailLines = 30

// RunError reports a step action that exited with a non-zero status. It
// carries the full captured output; the message shows only the tail, which
// is what a CI log reader needs to see first.
type RunError struct {
	Step      string
	Stdout    string
	Stderr    string
	TailLines int
	Err       error
}

func (e *RunError) Error() string {
	n := e.TailLines
	if n <= 0 {
		n = DefaultErrorTailLines
	}
	return fmt.Sprintf("step %q failed: %v\nStdout: %s\n\nStderr: %s",
		e.Step, e.Err, tail(e.Stdout, n), tail(e.Stderr, n))
}

func (e *RunError) Unwrap() error { return e.Err }

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// wrapRunError converts a command failure into a RunError, preserving the
// captured output. Non-command errors pass through unchanged.
func wrapRunError(stepName string, err error) error {
	if err == nil {
		return nil
	}
	var cmdErr *procutil.CommandError
	if errors.As(err, &cmdErr) {
		return &RunError{
			Step:      stepName,
			Stdout:    cmdErr.Stdout,
			Stderr:    cmdErr.Stderr,
			TailLines: DefaultErrorTailLines,
			Err:       cmdErr.Err,
		}
	}
	return err
}
