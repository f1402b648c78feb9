package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// scriptedRunner replays canned results per invocation and records every
// command it sees. When the script runs out the last entry repeats.
type scriptedRunner struct {
	mu      sync.Mutex
	script  []func(cmd domain.Command) (*domain.CommandResult, error)
	calls   []domain.Command
	current int
}

func (r *scriptedRunner) Run(_ context.Context, cmd domain.Command) (*domain.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	idx := r.current
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	r.current++
	return r.script[idx](cmd)
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// argValue returns the argument following flag in the given command
func argValue(cmd domain.Command, flag string) string {
	for i, a := range cmd.Args {
		if a == flag && i+1 < len(cmd.Args) {
			return cmd.Args[i+1]
		}
	}
	return ""
}

func hasArg(cmd domain.Command, flag string) bool {
	for _, a := range cmd.Args {
		if a == flag {
			return true
		}
	}
	return false
}

// extractorSuccess simulates a clean extraction: it drops a media file
// and its info sidecar into the -P directory taken from the command.
func extractorSuccess(t *testing.T, mediaBytes int) func(cmd domain.Command) (*domain.CommandResult, error) {
	t.Helper()
	return func(cmd domain.Command) (*domain.CommandResult, error) {
		dir := argValue(cmd, "-P")
		if dir == "" {
			return &domain.CommandResult{ExitCode: 2, Stderr: "no output dir"}, nil
		}
		media := filepath.Join(dir, "Some_Clip.mp4")
		if err := os.WriteFile(media, make([]byte, mediaBytes), 0o644); err != nil {
			return nil, err
		}
		sidecar := filepath.Join(dir, "Some_Clip.info.json")
		info := `{"title":"Some Clip","description":"desc","uploader":"someone","duration":42.7}`
		if err := os.WriteFile(sidecar, []byte(info), 0o644); err != nil {
			return nil, err
		}
		return &domain.CommandResult{ExitCode: 0}, nil
	}
}

func extractorFailure(exitCode int, stderr string) func(cmd domain.Command) (*domain.CommandResult, error) {
	return func(domain.Command) (*domain.CommandResult, error) {
		return &domain.CommandResult{ExitCode: exitCode, Stderr: stderr}, nil
	}
}

func packageTestConfig() domain.StrategiesConfig {
	return domain.StrategiesConfig{
		PackageEnabled: true,
		CookieEnabled:  true,
		YTDLPBinary:    "yt-dlp",
		MaxRetries:     2,
		RetryBase:      time.Millisecond,
		RetryCap:       5 * time.Millisecond,
		UserAgent:      "test-agent",
	}
}

func newPackageRequest(t *testing.T) *domain.DownloadRequest {
	t.Helper()
	req := domain.NewDownloadRequest("https://www.youtube.com/watch?v=x", domain.Tier720p, 50<<20)
	req.Platform = domain.PlatformYouTube
	req.TempDir = t.TempDir()
	return req
}

func videoProfile720() domain.QualityProfile {
	return domain.QualityProfile{
		TierLabel:         domain.Tier720p,
		FormatSelector:    "best[height<=720][ext=mp4]",
		ExpectedContainer: "mp4",
	}
}

func TestYTDLPExecutorSuccess(t *testing.T) {
	runner := &scriptedRunner{script: []func(domain.Command) (*domain.CommandResult, error){
		extractorSuccess(t, 1024),
	}}
	exec := NewYTDLPExecutor(packageTestConfig(), runner, zap.NewNop())
	req := newPackageRequest(t)

	outcome, err := exec.Acquire(context.Background(), req, videoProfile720())
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyPackage, outcome.Strategy)
	assert.True(t, outcome.Success)
	assert.FileExists(t, outcome.FilePath)
	assert.Equal(t, "Some Clip", outcome.Metadata.Title)
	assert.Equal(t, "someone", outcome.Metadata.Uploader)
	assert.Equal(t, 42, outcome.Metadata.Duration)
	assert.Equal(t, domain.PlatformYouTube, outcome.Metadata.Platform)
	assert.False(t, outcome.Metadata.AudioOnly)

	require.Equal(t, 1, runner.callCount())
	cmd := runner.calls[0]
	assert.Equal(t, "yt-dlp", cmd.Binary)
	assert.Equal(t, "best[height<=720][ext=mp4]", argValue(cmd, "--format"))
	assert.Equal(t, "test-agent", argValue(cmd, "--user-agent"))
	assert.Equal(t, "mp4", argValue(cmd, "--merge-output-format"))
	assert.False(t, hasArg(cmd, "--cookies"))
	assert.Equal(t, req.SourceURL, cmd.Args[len(cmd.Args)-1])
}

func TestYTDLPExecutorAudioProfileSkipsMerge(t *testing.T) {
	runner := &scriptedRunner{script: []func(domain.Command) (*domain.CommandResult, error){
		func(cmd domain.Command) (*domain.CommandResult, error) {
			dir := argValue(cmd, "-P")
			require.NoError(t, os.WriteFile(filepath.Join(dir, "track.m4a"), make([]byte, 64), 0o644))
			return &domain.CommandResult{ExitCode: 0}, nil
		},
	}}
	exec := NewYTDLPExecutor(packageTestConfig(), runner, zap.NewNop())
	req := newPackageRequest(t)

	outcome, err := exec.Acquire(context.Background(), req, domain.QualityProfile{
		TierLabel:      domain.TierAudio,
		FormatSelector: "bestaudio[ext=m4a]/bestaudio",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Metadata.AudioOnly)
	assert.False(t, hasArg(runner.calls[0], "--merge-output-format"))
}

func TestYTDLPExecutorRetriesTransientFailures(t *testing.T) {
	runner := &scriptedRunner{script: []func(domain.Command) (*domain.CommandResult, error){
		extractorFailure(1, "ERROR: HTTP Error 429: Too Many Requests"),
		extractorFailure(1, "ERROR: connection reset by peer"),
		extractorSuccess(t, 512),
	}}
	exec := NewYTDLPExecutor(packageTestConfig(), runner, zap.NewNop())

	outcome, err := exec.Acquire(context.Background(), newPackageRequest(t), videoProfile720())
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 3, runner.callCount())
}

func TestYTDLPExecutorDoesNotRetryPermanentFailures(t *testing.T) {
	runner := &scriptedRunner{script: []func(domain.Command) (*domain.CommandResult, error){
		extractorFailure(1, "ERROR: Video unavailable"),
	}}
	exec := NewYTDLPExecutor(packageTestConfig(), runner, zap.NewNop())
	req := newPackageRequest(t)

	outcome, err := exec.Acquire(context.Background(), req, videoProfile720())
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, domain.FailureNotFound, domain.KindOf(err))
	assert.Equal(t, 1, runner.callCount())

	// A failed attempt removes its working directory.
	entries, readErr := os.ReadDir(req.TempDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestYTDLPExecutorExhaustsRetries(t *testing.T) {
	runner := &scriptedRunner{script: []func(domain.Command) (*domain.CommandResult, error){
		extractorFailure(1, "ERROR: HTTP Error 429: Too Many Requests"),
	}}
	exec := NewYTDLPExecutor(packageTestConfig(), runner, zap.NewNop())

	_, err := exec.Acquire(context.Background(), newPackageRequest(t), videoProfile720())
	require.Error(t, err)
	assert.Equal(t, domain.FailureRateLimited, domain.KindOf(err))
	assert.Equal(t, 3, runner.callCount()) // initial try + MaxRetries
}

func TestClassifyExtractorFailure(t *testing.T) {
	cases := []struct {
		stderr string
		want   domain.FailureKind
	}{
		{"ERROR: Sign in to confirm your age", domain.FailureAuthRequired},
		{"ERROR: Private video. Sign in if you've been granted access", domain.FailureAuthRequired},
		{"ERROR: HTTP Error 404: Not Found", domain.FailureNotFound},
		{"ERROR: Video unavailable", domain.FailureNotFound},
		{"ERROR: HTTP Error 429: Too Many Requests", domain.FailureRateLimited},
		{"ERROR: Connection reset by peer", domain.FailureNetworkTimeout},
		{"ERROR: Read timed out", domain.FailureNetworkTimeout},
		{"ERROR: Unsupported URL: https://example.com", domain.FailureUnsupported},
		{"ERROR: Requested format is not available", domain.FailureUnsupported},
		{"ERROR: something nobody has seen before", domain.FailureUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyExtractorFailure(tc.stderr), tc.stderr)
	}
}

func TestFindMediaFilePicksLargest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.mp4"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "large.mkv"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumb.jpg"), make([]byte, 500), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "large.info.json"), []byte("{}"), 0o644))

	path, err := findMediaFile(dir)
	require.NoError(t, err)
	assert.Equal(t, "large.mkv", filepath.Base(path))
}

func TestFindMediaFileEmptyDir(t *testing.T) {
	_, err := findMediaFile(t.TempDir())
	assert.Error(t, err)
}

func TestReadInfoSidecarMissingIsZeroValue(t *testing.T) {
	meta := readInfoSidecar(filepath.Join(t.TempDir(), "nothing.mp4"))
	assert.Equal(t, domain.MediaMetadata{}, meta)
}

func TestCookieExecutorApplicable(t *testing.T) {
	exec := NewCookieExecutor(packageTestConfig(), &scriptedRunner{}, zap.NewNop())

	req := newPackageRequest(t)
	assert.False(t, exec.Applicable(req), "no credentials, nothing to add")

	req.Auth = domain.AuthContext{
		Platform:     domain.PlatformYouTube,
		CookieDomain: ".youtube.com",
		Cookies:      map[string]string{"session": "abc"},
	}
	assert.True(t, exec.Applicable(req))

	cfg := packageTestConfig()
	cfg.CookieEnabled = false
	disabled := NewCookieExecutor(cfg, &scriptedRunner{}, zap.NewNop())
	assert.False(t, disabled.Applicable(req))
}

func TestCookieExecutorMaterializesAndRemovesCookieFile(t *testing.T) {
	var sawCookieFile string
	runner := &scriptedRunner{script: []func(domain.Command) (*domain.CommandResult, error){
		func(cmd domain.Command) (*domain.CommandResult, error) {
			sawCookieFile = argValue(cmd, "--cookies")
			if sawCookieFile == "" {
				return &domain.CommandResult{ExitCode: 2, Stderr: "no cookies passed"}, nil
			}
			if _, err := os.Stat(sawCookieFile); err != nil {
				return nil, fmt.Errorf("cookie file not on disk during run: %w", err)
			}
			dir := argValue(cmd, "-P")
			return &domain.CommandResult{ExitCode: 0},
				os.WriteFile(filepath.Join(dir, "clip.mp4"), make([]byte, 32), 0o644)
		},
	}}
	exec := NewCookieExecutor(packageTestConfig(), runner, zap.NewNop())

	req := newPackageRequest(t)
	req.Auth = domain.AuthContext{
		Platform:     domain.PlatformYouTube,
		CookieDomain: ".youtube.com",
		Cookies:      map[string]string{"session": "abc"},
	}

	outcome, err := exec.Acquire(context.Background(), req, videoProfile720())
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyCookie, outcome.Strategy)
	assert.FileExists(t, outcome.FilePath)

	// The transient store must not outlive the attempt.
	require.NotEmpty(t, sawCookieFile)
	assert.NoFileExists(t, sawCookieFile)
}

func TestCookieExecutorCleansUpOnFailure(t *testing.T) {
	runner := &scriptedRunner{script: []func(domain.Command) (*domain.CommandResult, error){
		extractorFailure(1, "ERROR: Private video"),
	}}
	exec := NewCookieExecutor(packageTestConfig(), runner, zap.NewNop())

	req := newPackageRequest(t)
	req.Auth = domain.AuthContext{
		Platform:     domain.PlatformYouTube,
		CookieDomain: ".youtube.com",
		Cookies:      map[string]string{"session": "abc"},
	}

	_, err := exec.Acquire(context.Background(), req, videoProfile720())
	require.Error(t, err)
	assert.Equal(t, domain.FailureAuthRequired, domain.KindOf(err))

	entries, readErr := os.ReadDir(req.TempDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestWriteNetscapeCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	auth := domain.AuthContext{
		Platform:     domain.PlatformYouTube,
		CookieDomain: ".youtube.com",
		Cookies: map[string]string{
			"zeta":  "last",
			"alpha": "first",
			"empty": "",
		},
	}
	require.NoError(t, writeNetscapeCookies(path, auth))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "# Netscape HTTP Cookie File\n" +
		"# This is a generated file! Do not edit.\n\n" +
		".youtube.com\tTRUE\t/\tTRUE\t0\talpha\tfirst\n" +
		".youtube.com\tTRUE\t/\tTRUE\t0\tzeta\tlast\n"
	assert.Equal(t, want, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteNetscapeCookiesRequiresDomain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	err := writeNetscapeCookies(path, domain.AuthContext{Cookies: map[string]string{"a": "b"}})
	assert.Error(t, err)
}
