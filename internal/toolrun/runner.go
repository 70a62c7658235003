// Package toolrun abstracts external bioinformatics tool invocation.
// The engine depends only on the Runner interface; the aligner, variant
// caller and annotator are opaque collaborators reached through it.
package toolrun

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Invocation is one external command execution request.
type Invocation struct {
	// Command is a shell command line, run via "sh -c".
	Command string

	// Dir is the working directory; empty means the process default.
	Dir string

	// Timeout bounds the invocation when non-zero. The engine itself
	// imposes no default timeout; long-running alignment jobs are the
	// norm, not the exception.
	Timeout time.Duration
}

// Result is the outcome of an external invocation. A non-zero ExitCode
// is a task failure, not an infrastructure error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external tool invocations. Implementations must
// honor context cancellation by terminating the underlying process.
type Runner interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// ShellRunner runs invocations through the system shell.
type ShellRunner struct {
	// Shell overrides the shell binary; defaults to "sh".
	Shell string
}

// Invoke runs the command to completion. The returned error is non-nil
// only for infrastructure failures (shell missing, context cancelled
// before start); tool failures surface as a non-zero ExitCode.
func (r *ShellRunner) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, shell, "-c", inv.Command)
	cmd.Dir = inv.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// Process never ran (or was killed by cancellation before a
		// clean exit status was available).
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}
