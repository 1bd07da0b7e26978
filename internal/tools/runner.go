// Package tools implements the gateway's two checks, ping_host and
// check_website, as bounded external-process invocations.
package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// RunOutput captures what an external command produced.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an external command under a context deadline. Tests swap in
// a stub so no subprocess is spawned.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (RunOutput, error)
}

// ExecRunner runs commands via os/exec. The context deadline forcibly kills
// the process when it expires.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (RunOutput, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		// Deadline expiry kills the child; report it as a timeout rather
		// than a generic exit failure.
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}

	out.ExitCode = cmd.ProcessState.ExitCode()
	return out, nil
}
