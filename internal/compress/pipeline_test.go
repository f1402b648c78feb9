package compress

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// fakeRunner simulates ffmpeg by writing an output file whose size is
// looked up from the scale filter in the argv.
type fakeRunner struct {
	mu          sync.Mutex
	invocations []domain.Command
	// sizeFor maps a scale target ("720", "480", "fast") to output bytes;
	// a zero entry simulates a failed invocation.
	sizeFor map[string]int64
}

func (f *fakeRunner) Run(ctx context.Context, cmd domain.Command) (*domain.CommandResult, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, cmd)
	f.mu.Unlock()

	outPath := cmd.Args[len(cmd.Args)-1]
	key := "fast"
	for _, a := range cmd.Args {
		if strings.HasPrefix(a, "scale=-2:") {
			key = strings.TrimPrefix(a, "scale=-2:")
		}
	}

	size, ok := f.sizeFor[key]
	if !ok || size == 0 {
		return &domain.CommandResult{ExitCode: 1, Stderr: "simulated encode failure"}, nil
	}
	if err := os.WriteFile(outPath, make([]byte, size), 0644); err != nil {
		return nil, err
	}
	return &domain.CommandResult{ExitCode: 0}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invocations)
}

func (f *fakeRunner) commands() []domain.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Command(nil), f.invocations...)
}

func writeInput(t *testing.T, size int64) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.mp4")
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0644))
	return p
}

func testConfig() domain.CompressConfig {
	cfg := domain.DefaultConfig().Compress
	cfg.FastPassCutoff = 100
	cfg.WorkerSlots = 2
	cfg.TimeoutCeiling = time.Minute
	return cfg
}

func TestEnsureWithinBudget_NoOpBelowBudget(t *testing.T) {
	runner := &fakeRunner{}
	p := NewPipeline(testConfig(), runner, nil)

	input := writeInput(t, 30)
	path, size, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, input, path, "file under budget must be returned untouched")
	assert.Equal(t, int64(30), size)
	assert.Zero(t, runner.count(), "no transcoding invocation for a fitting file")
}

func TestEnsureWithinBudget_FastPassForSmallInput(t *testing.T) {
	runner := &fakeRunner{sizeFor: map[string]int64{"fast": 40}}
	p := NewPipeline(testConfig(), runner, nil)

	input := writeInput(t, 80) // over budget 50, under cutoff 100
	path, size, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(40), size)
	assert.NotEqual(t, input, path)
	assert.Equal(t, 1, runner.count())
}

func TestEnsureWithinBudget_LadderStopsAtFirstFit(t *testing.T) {
	// 180 bytes in, budget 50: 720p yields 90 (rejected), 480p yields 40.
	runner := &fakeRunner{sizeFor: map[string]int64{"720": 90, "480": 40, "360": 20}}
	cfg := testConfig()
	p := NewPipeline(cfg, runner, nil)

	input := writeInput(t, 180)
	path, size, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(40), size)
	assert.Contains(t, path, "480p")
	assert.Equal(t, 2, runner.count(), "360p level must not run once 480p fits")

	// The rejected 720p intermediate must be gone.
	entries, err := os.ReadDir(filepath.Dir(input))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "720p", "rejected intermediate must be deleted")
	}
}

func TestEnsureWithinBudget_MonotonicShrink(t *testing.T) {
	runner := &fakeRunner{sizeFor: map[string]int64{"720": 90, "480": 70, "360": 45}}
	p := NewPipeline(testConfig(), runner, nil)

	input := writeInput(t, 180)
	_, size, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(45), size)
}

func TestEnsureWithinBudget_BudgetUnattainable(t *testing.T) {
	runner := &fakeRunner{sizeFor: map[string]int64{"720": 90, "480": 80, "360": 70}}
	p := NewPipeline(testConfig(), runner, nil)

	input := writeInput(t, 180)
	_, _, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	assert.ErrorIs(t, err, domain.ErrBudgetUnattainable)

	// No intermediates survive a terminal failure.
	entries, readErr := os.ReadDir(filepath.Dir(input))
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(input), entries[0].Name())
}

func TestEnsureWithinBudget_LevelFailureFallsThrough(t *testing.T) {
	// 720p invocation fails outright; 480p succeeds and fits.
	runner := &fakeRunner{sizeFor: map[string]int64{"480": 30}}
	p := NewPipeline(testConfig(), runner, nil)

	input := writeInput(t, 180)
	path, size, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), size)
	assert.Contains(t, path, "480p")
}

func TestEnsureWithinBudget_FastPassOverBudgetFallsToLadder(t *testing.T) {
	runner := &fakeRunner{sizeFor: map[string]int64{"fast": 70, "720": 30}}
	p := NewPipeline(testConfig(), runner, nil)

	input := writeInput(t, 80)
	path, size, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), size)
	assert.Contains(t, path, "720p")
}

func TestEnsureWithinBudget_CancelledContext(t *testing.T) {
	runner := &fakeRunner{sizeFor: map[string]int64{"720": 90}}
	p := NewPipeline(testConfig(), runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := writeInput(t, 180)
	_, _, err := p.EnsureWithinBudget(ctx, input, 50, nil)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestFfmpegArgs_OutputPathLast(t *testing.T) {
	args := ffmpegArgs("/tmp/in.mp4", "/tmp/out.mp4", map[string]interface{}{"crf": "30"})
	require.NotEmpty(t, args)
	assert.Equal(t, "-y", args[0])
	assert.Equal(t, "/tmp/out.mp4", args[len(args)-1],
		"output path must stay the final argument")
}

func TestEnsureWithinBudget_EveryInvocationBounded(t *testing.T) {
	// Fast pass over budget, then the ladder: every ffmpeg run must
	// carry a positive timeout.
	runner := &fakeRunner{sizeFor: map[string]int64{"fast": 70, "720": 30}}
	p := NewPipeline(testConfig(), runner, nil)

	input := writeInput(t, 80)
	_, _, err := p.EnsureWithinBudget(context.Background(), input, 50, nil)
	require.NoError(t, err)

	cmds := runner.commands()
	require.Len(t, cmds, 2)
	for i, cmd := range cmds {
		assert.Positive(t, cmd.Timeout, "invocation %d ran unbounded", i)
	}
}

type stageRecorder struct {
	mu     sync.Mutex
	labels []string
}

func (s *stageRecorder) StageChange(stage domain.Stage, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, label)
}

func TestEnsureWithinBudget_EmitsStageLabels(t *testing.T) {
	runner := &fakeRunner{sizeFor: map[string]int64{"720": 90, "480": 40}}
	p := NewPipeline(testConfig(), runner, nil)
	rec := &stageRecorder{}

	input := writeInput(t, 180)
	_, _, err := p.EnsureWithinBudget(context.Background(), input, 50, rec)
	require.NoError(t, err)
	require.Len(t, rec.labels, 2)
	assert.Contains(t, rec.labels[0], "720p")
	assert.Contains(t, rec.labels[1], "480p")
}
