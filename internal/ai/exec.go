package ai

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/afkcode/internal/errors"
)

// CommandContext is exec.CommandContext, swappable in tests.
var CommandContext = exec.CommandContext

// Invoker runs a tool once and returns its captured output.
type Invoker interface {
	Invoke(ctx context.Context, tool Tool, prompt string, thinking bool) (stdout, stderr string, err error)
}

// waitDelay bounds how long Wait keeps reading pipes held open by
// grandchildren after the tool itself was killed.
const waitDelay = 5 * time.Second

// ProcessInvoker runs tools as child processes.
type ProcessInvoker struct {
	// Timeout caps a single run. Zero means no cap.
	Timeout time.Duration
}

// Invoke spawns the tool in its own process group, so a terminal Ctrl+C
// reaches only afkcode, feeds the prompt, and waits for both streams to
// close.
//
// A non-zero exit is only an error when the tool produced no output at
// all; otherwise the output is returned so rate-limit detection can see
// it.
func (p ProcessInvoker) Invoke(ctx context.Context, tool Tool, prompt string, thinking bool) (string, string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args, stdin := tool.Argv(prompt, thinking)
	cmd := CommandContext(ctx, tool.Command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole group the tool may have forked.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return "", "", errors.NewToolError("invocation canceled", fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err())).
				WithTool(tool.Name)
		}
		return "", "", errors.NewToolError(
			fmt.Sprintf("failed to spawn %s process; is the %s CLI installed?", tool.Name, tool.Command),
			fmt.Errorf("%w: %w", errors.ErrToolSpawn, err),
		).WithTool(tool.Name)
	}

	err := cmd.Wait()
	out, errOut := stdout.String(), stderr.String()
	if err == nil {
		return out, errOut, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return out, errOut, errors.NewToolError("invocation timed out", errors.NewTimeoutError(tool.Name, p.Timeout)).
			WithTool(tool.Name)
	}
	if ctx.Err() != nil {
		return out, errOut, errors.NewToolError("invocation canceled", fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err())).
			WithTool(tool.Name)
	}
	if strings.TrimSpace(out) == "" && strings.TrimSpace(errOut) == "" {
		return out, errOut, errors.NewToolError("exited without output", fmt.Errorf("%w: %w", errors.ErrToolFailed, err)).
			WithTool(tool.Name)
	}
	return out, errOut, nil
}
