//go:build !windows

package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

func TestExecRunner_CapturesOutputAndExitCode(t *testing.T) {
	r := NewExecRunner(time.Second, nil)

	result, err := r.Run(context.Background(), domain.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
}

func TestExecRunner_NonZeroExitIsResultNotError(t *testing.T) {
	r := NewExecRunner(time.Second, nil)

	result, err := r.Run(context.Background(), domain.Command{
		Binary: "sh",
		Args:   []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestExecRunner_TimeoutClassifiedAsNetworkTimeout(t *testing.T) {
	r := NewExecRunner(100*time.Millisecond, nil)

	start := time.Now()
	_, err := r.Run(context.Background(), domain.Command{
		Binary:  "sleep",
		Args:    []string{"10"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, domain.FailureNetworkTimeout, domain.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second, "timeout plus grace must bound the wait")
}

func TestExecRunner_CallerCancellation(t *testing.T) {
	r := NewExecRunner(100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, domain.Command{Binary: "sleep", Args: []string{"10"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShellEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"has space", "'has space'"},
		{"dollar$var", "'dollar$var'"},
		{"it's", `'it'"'"'s'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shellEscape(tt.in))
	}
}

func TestShellEscapeCommand(t *testing.T) {
	got := shellEscapeCommand("yt-dlp", "-o", "out file.mp4", "https://x.com/a?b=c")
	assert.Equal(t, "yt-dlp -o 'out file.mp4' 'https://x.com/a?b=c'", got)
}
