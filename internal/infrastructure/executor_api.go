package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// APIExecutor resolves a direct media URL through a third-party resolver
// endpoint (or the YouTube innertube API) and streams it straight to disk.
// It never shells out, which makes it the cheapest strategy when a
// platform has a working resolver.
type APIExecutor struct {
	cfg    domain.StrategiesConfig
	client *http.Client
	yt     youtube.Client
	logger *zap.Logger
}

// resolverTimeout bounds one resolver round trip. Media streaming is
// bounded per phase by the transport instead, so a large direct file is
// free to take as long as the request context allows.
const resolverTimeout = 60 * time.Second

// NewAPIExecutor creates the API acquisition strategy
func NewAPIExecutor(cfg domain.StrategiesConfig, logger *zap.Logger) *APIExecutor {
	return &APIExecutor{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   15 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		yt:     youtube.Client{},
		logger: logger,
	}
}

// Kind returns the strategy identity of this executor
func (e *APIExecutor) Kind() domain.StrategyKind {
	return domain.StrategyAPI
}

// Applicable reports whether a resolver exists for the request's platform
func (e *APIExecutor) Applicable(request *domain.DownloadRequest) bool {
	if !e.cfg.APIEnabled {
		return false
	}
	switch request.Platform {
	case domain.PlatformYouTube, domain.PlatformDirect:
		return true
	case domain.PlatformTikTok:
		return e.cfg.TikTokAPI != ""
	case domain.PlatformFacebook:
		return e.cfg.FacebookAPI != ""
	case domain.PlatformTwitter:
		return e.cfg.TwitterAPI != ""
	default:
		return false
	}
}

// Acquire resolves and downloads the media for one quality profile. The
// attempt directory is removed on failure so losers leave nothing behind.
func (e *APIExecutor) Acquire(ctx context.Context, request *domain.DownloadRequest, profile domain.QualityProfile) (*domain.StrategyOutcome, error) {
	attemptDir := filepath.Join(request.TempDir, fmt.Sprintf("api-%s", profile.TierLabel))
	if err := os.MkdirAll(attemptDir, 0o755); err != nil {
		return nil, domain.NewStrategyError(domain.FailureUnknown, err)
	}

	outcome, err := e.acquireInto(ctx, attemptDir, request, profile)
	if err != nil {
		os.RemoveAll(attemptDir)
		return nil, err
	}
	return outcome, nil
}

func (e *APIExecutor) acquireInto(ctx context.Context, dir string, request *domain.DownloadRequest, profile domain.QualityProfile) (*domain.StrategyOutcome, error) {
	if request.Platform == domain.PlatformYouTube {
		return e.acquireYouTube(ctx, dir, request, profile)
	}

	var (
		mediaURL string
		meta     domain.MediaMetadata
		err      error
	)
	switch request.Platform {
	case domain.PlatformDirect:
		mediaURL = request.SourceURL
		meta = domain.MediaMetadata{Platform: request.Platform}
	case domain.PlatformTikTok:
		mediaURL, meta, err = e.resolveTikTok(ctx, request.SourceURL)
	case domain.PlatformFacebook:
		mediaURL, meta, err = e.resolveFacebook(ctx, request.SourceURL, profile)
	case domain.PlatformTwitter:
		mediaURL, meta, err = e.resolveTwitter(ctx, request.SourceURL)
	default:
		return nil, domain.NewStrategyError(domain.FailureUnsupported,
			fmt.Errorf("no resolver for platform %s", request.Platform))
	}
	if err != nil {
		return nil, err
	}
	if mediaURL == "" {
		return nil, domain.NewStrategyError(domain.FailureUnsupported,
			fmt.Errorf("resolver returned no media url for %s", request.Platform))
	}
	meta.Platform = request.Platform

	outPath := filepath.Join(dir, outputFileName(meta.Title, mediaURL))
	if err := e.downloadDirect(ctx, request, mediaURL, outPath); err != nil {
		return nil, err
	}

	return &domain.StrategyOutcome{
		Strategy: domain.StrategyAPI,
		Success:  true,
		FilePath: outPath,
		Metadata: meta,
	}, nil
}

// acquireYouTube downloads through the innertube client, preferring the
// muxed mp4 format closest to the profile ceiling so no remux is needed.
func (e *APIExecutor) acquireYouTube(ctx context.Context, dir string, request *domain.DownloadRequest, profile domain.QualityProfile) (*domain.StrategyOutcome, error) {
	video, err := e.yt.GetVideoContext(ctx, request.SourceURL)
	if err != nil {
		return nil, classifyYouTubeFailure(err)
	}

	format, err := selectYouTubeFormat(video, profile)
	if err != nil {
		return nil, err
	}

	stream, size, err := e.yt.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, classifyYouTubeFailure(err)
	}
	defer stream.Close()

	ext := "mp4"
	if profile.TierLabel == domain.TierAudio {
		ext = "m4a"
	}
	outPath := filepath.Join(dir, fmt.Sprintf("%s.%s", sanitizeTitle(video.Title), ext))
	if err := e.copyWithProgress(ctx, request, stream, size, outPath); err != nil {
		return nil, err
	}

	return &domain.StrategyOutcome{
		Strategy: domain.StrategyAPI,
		Success:  true,
		FilePath: outPath,
		Metadata: domain.MediaMetadata{
			Title:       video.Title,
			Description: video.Description,
			Uploader:    video.Author,
			Duration:    int(video.Duration.Seconds()),
			Platform:    domain.PlatformYouTube,
			AudioOnly:   profile.TierLabel == domain.TierAudio,
		},
	}, nil
}

// selectYouTubeFormat picks the best muxed mp4 at or below the profile
// ceiling, falling back to whatever has audio when nothing fits.
func selectYouTubeFormat(video *youtube.Video, profile domain.QualityProfile) (*youtube.Format, error) {
	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		formats = video.Formats
	}
	if len(formats) == 0 {
		return nil, domain.NewStrategyError(domain.FailureUnsupported,
			fmt.Errorf("video %s exposes no formats", video.ID))
	}

	if profile.TierLabel == domain.TierAudio {
		var best *youtube.Format
		for i := range formats {
			f := &formats[i]
			if !strings.Contains(f.MimeType, "audio/") {
				continue
			}
			if best == nil || f.Bitrate > best.Bitrate {
				best = f
			}
		}
		if best != nil {
			return best, nil
		}
		// No pure audio stream; lowest muxed format is the next best thing.
	}

	ceiling := profile.TierLabel.Height()
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.Contains(f.MimeType, "video/mp4") {
			continue
		}
		if ceiling > 0 && f.Height > ceiling {
			continue
		}
		if best == nil || f.Height > best.Height {
			best = f
		}
	}
	if best == nil {
		// Everything is above the ceiling; take the smallest available.
		for i := range formats {
			f := &formats[i]
			if !strings.Contains(f.MimeType, "video/mp4") {
				continue
			}
			if best == nil || f.Height < best.Height {
				best = f
			}
		}
	}
	if best == nil {
		best = &formats[0]
	}
	return best, nil
}

func classifyYouTubeFailure(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "login required") || strings.Contains(msg, "age restricted") || strings.Contains(msg, "private"):
		return domain.NewStrategyError(domain.FailureAuthRequired, err)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "unavailable"):
		return domain.NewStrategyError(domain.FailureNotFound, err)
	case strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return domain.NewStrategyError(domain.FailureRateLimited, err)
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return domain.NewStrategyError(domain.FailureNetworkTimeout, err)
	default:
		return domain.NewStrategyError(domain.FailureUnknown, err)
	}
}

// tikwmResponse mirrors the tikwm.com resolver payload. hdplay is the
// watermark-free HD rendition and wins over play when present.
type tikwmResponse struct {
	Code int `json:"code"`
	Data struct {
		HDPlay   string  `json:"hdplay"`
		Play     string  `json:"play"`
		Title    string  `json:"title"`
		Duration float64 `json:"duration"`
		Author   struct {
			Nickname string `json:"nickname"`
		} `json:"author"`
	} `json:"data"`
}

func (e *APIExecutor) resolveTikTok(ctx context.Context, sourceURL string) (string, domain.MediaMetadata, error) {
	var payload tikwmResponse
	if err := e.fetchJSON(ctx, e.cfg.TikTokAPI+sourceURL, &payload); err != nil {
		return "", domain.MediaMetadata{}, err
	}
	if payload.Code != 0 {
		return "", domain.MediaMetadata{}, domain.NewStrategyError(domain.FailureNotFound,
			fmt.Errorf("tikwm resolver returned code %d", payload.Code))
	}
	mediaURL := payload.Data.HDPlay
	if mediaURL == "" {
		mediaURL = payload.Data.Play
	}
	meta := domain.MediaMetadata{
		Title:    payload.Data.Title,
		Uploader: payload.Data.Author.Nickname,
		Duration: int(payload.Data.Duration),
	}
	return mediaURL, meta, nil
}

type fbVideoResponse struct {
	Title string            `json:"title"`
	Links map[string]string `json:"links"`
}

func (e *APIExecutor) resolveFacebook(ctx context.Context, sourceURL string, profile domain.QualityProfile) (string, domain.MediaMetadata, error) {
	var payload fbVideoResponse
	if err := e.fetchJSON(ctx, e.cfg.FacebookAPI+sourceURL, &payload); err != nil {
		return "", domain.MediaMetadata{}, err
	}

	// The resolver only distinguishes HD and SD; anything at or above
	// 720p takes the high rendition.
	keys := []string{"Download High Quality", "Download Low Quality"}
	if h := profile.TierLabel.Height(); h > 0 && h < 720 {
		keys = []string{"Download Low Quality", "Download High Quality"}
	}
	for _, k := range keys {
		if u := payload.Links[k]; u != "" {
			return u, domain.MediaMetadata{Title: payload.Title}, nil
		}
	}
	return "", domain.MediaMetadata{}, nil
}

type twitSaveResponse struct {
	URL      string `json:"url"`
	Download []struct {
		URL string `json:"url"`
	} `json:"download"`
	Media []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"media"`
}

func (e *APIExecutor) resolveTwitter(ctx context.Context, sourceURL string) (string, domain.MediaMetadata, error) {
	var payload twitSaveResponse
	if err := e.fetchJSON(ctx, e.cfg.TwitterAPI+sourceURL, &payload); err != nil {
		return "", domain.MediaMetadata{}, err
	}
	if payload.URL != "" {
		return payload.URL, domain.MediaMetadata{}, nil
	}
	if len(payload.Download) > 0 && payload.Download[0].URL != "" {
		return payload.Download[0].URL, domain.MediaMetadata{}, nil
	}
	for _, m := range payload.Media {
		if m.Type == "video" && m.URL != "" {
			return m.URL, domain.MediaMetadata{}, nil
		}
	}
	return "", domain.MediaMetadata{}, nil
}

func (e *APIExecutor) fetchJSON(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, resolverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.NewStrategyError(domain.FailureUnknown, err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return classifyTransportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatusFailure(resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return domain.NewStrategyError(domain.FailureUnsupported,
			fmt.Errorf("resolver response is not valid json: %w", err))
	}
	return nil
}

// downloadDirect streams mediaURL to outPath, retrying transient
// transport failures. The partial file survives between attempts so the
// retry resumes with a Range request instead of starting over.
func (e *APIExecutor) downloadDirect(ctx context.Context, request *domain.DownloadRequest, mediaURL, outPath string) error {
	const streamAttempts = 3
	var err error
	for attempt := 1; attempt <= streamAttempts; attempt++ {
		if err = e.streamToFile(ctx, request, mediaURL, outPath); err == nil {
			return nil
		}
		if ctx.Err() != nil || !domain.KindOf(err).Retryable() {
			return err
		}
		e.logger.Warn("direct stream interrupted, resuming",
			zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

// streamToFile downloads mediaURL to outPath, resuming a partial file
// with a Range request when one exists from an earlier attempt.
func (e *APIExecutor) streamToFile(ctx context.Context, request *domain.DownloadRequest, mediaURL, outPath string) error {
	var offset int64
	if info, err := os.Stat(outPath); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return domain.NewStrategyError(domain.FailureUnknown, err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return classifyTransportFailure(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range; start over.
		offset = 0
	case http.StatusPartialContent:
	default:
		return classifyStatusFailure(resp.StatusCode)
	}

	total := offset + resp.ContentLength
	if resp.ContentLength < 0 {
		total = 0
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(outPath, flags, 0o644)
	if err != nil {
		return domain.NewStrategyError(domain.FailureUnknown, err)
	}

	err = e.copyBody(ctx, request, resp.Body, out, offset, total)
	closeErr := out.Close()
	if err != nil {
		// Partial files survive for range resume on the next retry, but
		// cancellation means this attempt's directory is being torn down.
		return err
	}
	if closeErr != nil {
		return domain.NewStrategyError(domain.FailureUnknown, closeErr)
	}
	return nil
}

func (e *APIExecutor) copyWithProgress(ctx context.Context, request *domain.DownloadRequest, src io.Reader, total int64, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return domain.NewStrategyError(domain.FailureUnknown, err)
	}
	err = e.copyBody(ctx, request, src, out, 0, total)
	closeErr := out.Close()
	if err != nil {
		os.Remove(outPath)
		return err
	}
	if closeErr != nil {
		os.Remove(outPath)
		return domain.NewStrategyError(domain.FailureUnknown, closeErr)
	}
	return nil
}

func (e *APIExecutor) copyBody(ctx context.Context, request *domain.DownloadRequest, src io.Reader, dst io.Writer, done, total int64) error {
	buf := make([]byte, 128*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return domain.NewStrategyError(domain.FailureUnknown, writeErr)
			}
			done += int64(n)
			request.ReportProgress(domain.ProgressSample{
				BytesDone:  done,
				BytesTotal: total,
				Stage:      domain.StageDownloading,
				At:         time.Now(),
			})
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return classifyTransportFailure(readErr)
		}
	}
}

func classifyTransportFailure(err error) error {
	if kind := domain.KindOf(err); kind == domain.FailureNetworkTimeout {
		return domain.NewStrategyError(domain.FailureNetworkTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return domain.NewStrategyError(domain.FailureNetworkTimeout, err)
	}
	if strings.Contains(msg, "context canceled") {
		return err
	}
	return domain.NewStrategyError(domain.FailureUnknown, err)
}

func classifyStatusFailure(status int) error {
	err := fmt.Errorf("unexpected status %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewStrategyError(domain.FailureAuthRequired, err)
	case status == http.StatusNotFound || status == http.StatusGone:
		return domain.NewStrategyError(domain.FailureNotFound, err)
	case status == http.StatusTooManyRequests:
		return domain.NewStrategyError(domain.FailureRateLimited, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.NewStrategyError(domain.FailureNetworkTimeout, err)
	default:
		return domain.NewStrategyError(domain.FailureUnknown, err)
	}
}

// outputFileName derives a stable local name from the resolved title or,
// failing that, the media URL path.
func outputFileName(title, mediaURL string) string {
	if title != "" {
		return sanitizeTitle(title) + ".mp4"
	}
	base := filepath.Base(strings.SplitN(mediaURL, "?", 2)[0])
	if base == "" || base == "." || base == "/" {
		return "media.mp4"
	}
	if filepath.Ext(base) == "" {
		base += ".mp4"
	}
	return base
}

func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "media"
	}
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	clean := replacer.Replace(title)
	if len(clean) > 100 {
		clean = clean[:100]
	}
	return strings.TrimSpace(clean)
}
