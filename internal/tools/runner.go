package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	logger "github.com/dvdmaker/dvdmaker/internal/logging"
)

// CommandResult holds the captured output of an external command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. The production implementation
// shells out through os/exec; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands with os/exec, logging each invocation.
// A non-zero exit is reported through CommandResult.ExitCode rather
// than as an error, so callers can inspect output from tools that
// exit non-zero by convention.
type ExecRunner struct {
	Log logger.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	r.Log.Debugf("Executing command: %s %s", name, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.Log.Debugf("Command exited with code %d: %s", result.ExitCode, name)
			return result, nil
		}
		r.Log.Debugf("Command failed to run: %s: %v", name, err)
		return result, err
	}

	r.Log.Debugf("Command completed: %s", name)
	return result, nil
}
