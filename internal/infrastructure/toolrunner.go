package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// ExecRunner is the exec-based ToolRunner used in production. Every
// external binary (yt-dlp, ffmpeg) goes through here so timeout,
// cancellation grace, and command logging behave identically at every
// call site.
type ExecRunner struct {
	grace  time.Duration
	logger *zap.Logger
}

// NewExecRunner creates a runner. grace bounds how long a cancelled
// subprocess may linger before it is killed outright.
func NewExecRunner(grace time.Duration, logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &ExecRunner{grace: grace, logger: logger}
}

// Run executes the command, honoring both the context and the
// command's own timeout. A non-zero exit is reported in the result,
// not as an error; errors mean the process could not run or the
// deadline fired.
func (r *ExecRunner) Run(ctx context.Context, cmd domain.Command) (*domain.CommandResult, error) {
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.WaitDelay = r.grace
	execCmd.Cancel = func() error {
		// Ask politely first; WaitDelay escalates to SIGKILL.
		return execCmd.Process.Signal(interruptSignal())
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	r.logger.Debug("running external tool",
		zap.String("cmd", shellEscapeCommand(cmd.Binary, cmd.Args...)))

	start := time.Now()
	err := execCmd.Run()
	elapsed := time.Since(start)

	result := &domain.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && runCtx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if runCtx.Err() != nil {
			// Distinguish the command's own deadline from caller cancel.
			if ctx.Err() == nil {
				return result, domain.NewStrategyError(domain.FailureNetworkTimeout, runCtx.Err())
			}
			return result, ctx.Err()
		}
		return result, err
	}
	return result, nil
}

// shellEscape quotes a string for safe display in a log line.
// exec.Command itself never needs this; it is purely cosmetic.
func shellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t'\"$`\\!*?[](){}|;<>&~#%\n\r") {
		return s
	}
	var b strings.Builder
	b.WriteString("'")
	for _, c := range s {
		if c == '\'' {
			b.WriteString(`'"'"'`)
		} else {
			b.WriteRune(c)
		}
	}
	b.WriteString("'")
	return b.String()
}

func shellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellEscape(binary))
	for _, a := range args {
		parts = append(parts, shellEscape(a))
	}
	return strings.Join(parts, " ")
}
