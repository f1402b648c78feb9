package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// CookieExecutor is the authenticated variant of the package strategy:
// it materializes the request's credential bundle into a transient
// Netscape cookie store and hands it to the extraction utility. The
// store never outlives the attempt.
type CookieExecutor struct {
	cfg    domain.StrategiesConfig
	inner  *YTDLPExecutor
	logger *zap.Logger
}

// NewCookieExecutor creates the cookie-authenticated strategy
func NewCookieExecutor(cfg domain.StrategiesConfig, runner domain.ToolRunner, logger *zap.Logger) *CookieExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CookieExecutor{
		cfg:    cfg,
		inner:  NewYTDLPExecutor(cfg, runner, logger),
		logger: logger,
	}
}

// Kind implements StrategyExecutor
func (e *CookieExecutor) Kind() domain.StrategyKind { return domain.StrategyCookie }

// Applicable implements StrategyExecutor: without credentials there is
// nothing this strategy can add over the plain package one.
func (e *CookieExecutor) Applicable(request *domain.DownloadRequest) bool {
	return e.cfg.CookieEnabled && !request.Auth.Empty()
}

// Acquire implements StrategyExecutor
func (e *CookieExecutor) Acquire(ctx context.Context, request *domain.DownloadRequest, profile domain.QualityProfile) (*domain.StrategyOutcome, error) {
	attemptDir := filepath.Join(request.TempDir, "cookie-"+string(profile.TierLabel))
	if err := os.MkdirAll(attemptDir, 0755); err != nil {
		return nil, domain.NewStrategyError(domain.FailureUnknown, err)
	}

	cookieFile := filepath.Join(attemptDir, "cookies.txt")
	if err := writeNetscapeCookies(cookieFile, request.Auth); err != nil {
		os.RemoveAll(attemptDir)
		return nil, domain.NewStrategyError(domain.FailureUnknown, err)
	}
	// The transient store goes away whatever the outcome; on success
	// only the media file survives in the attempt dir.
	defer os.Remove(cookieFile)

	outcome, err := e.inner.acquireWithRetries(ctx, request, profile, attemptDir, cookieFile)
	if err != nil {
		os.RemoveAll(attemptDir)
		return nil, err
	}
	outcome.Strategy = e.Kind()
	return outcome, nil
}

// writeNetscapeCookies renders an auth bundle in the Netscape cookie
// file format the extraction utility expects. Cookie names are sorted
// so the output is deterministic.
func writeNetscapeCookies(path string, auth domain.AuthContext) error {
	if auth.CookieDomain == "" {
		return fmt.Errorf("auth context has no cookie domain")
	}

	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	b.WriteString("# This is a generated file! Do not edit.\n\n")

	names := make([]string, 0, len(auth.Cookies))
	for name := range auth.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := auth.Cookies[name]
		if value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s\tTRUE\t/\tTRUE\t0\t%s\t%s\n", auth.CookieDomain, name, value)
	}

	return os.WriteFile(path, []byte(b.String()), 0600)
}
