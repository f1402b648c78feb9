package domain

import (
	"context"
	"time"
)

// Command describes one external tool invocation
type Command struct {
	Binary  string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// CommandResult captures the outcome of a finished invocation
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ToolRunner centralizes subprocess invocation with uniform timeout and
// cancellation handling. Both the extraction executors and the
// compression pipeline run their binaries through this seam, so tests
// can substitute a fake and never spawn real processes.
type ToolRunner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}
