package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	id3v2 "github.com/bogem/id3v2/v2"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// AudioTagger embeds title/artist metadata into audio-only deliverables.
// MP3 files get ID3v2 tags written in-process; container formats go
// through an ffmpeg stream-copy remux.
type AudioTagger struct {
	ffmpegBinary string
	runner       domain.ToolRunner
	logger       *zap.Logger
}

// NewAudioTagger creates the deliverable metadata tagger
func NewAudioTagger(ffmpegBinary string, runner domain.ToolRunner, logger *zap.Logger) *AudioTagger {
	return &AudioTagger{
		ffmpegBinary: ffmpegBinary,
		runner:       runner,
		logger:       logger,
	}
}

// Tag embeds metadata into the file at path. Tagging is best effort:
// unsupported formats are skipped without error, and the file is left
// untouched when anything fails.
func (t *AudioTagger) Tag(ctx context.Context, path string, meta domain.MediaMetadata) error {
	if path == "" || (meta.Title == "" && meta.Uploader == "") {
		return nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return t.tagID3(path, meta)
	case ".m4a", ".mp4", ".opus", ".ogg", ".webm", ".mkv":
		return t.tagWithFFmpeg(ctx, path, meta)
	default:
		return nil
	}
}

func (t *AudioTagger) tagID3(path string, meta domain.MediaMetadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open id3 tag: %w", err)
	}
	defer tag.Close()

	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Uploader != "" {
		tag.SetArtist(meta.Uploader)
	}
	return tag.Save()
}

// tagWithFFmpeg remuxes to a sibling temp file with -c copy and swaps
// it in on success.
func (t *AudioTagger) tagWithFFmpeg(ctx context.Context, path string, meta domain.MediaMetadata) error {
	tmpPath := filepath.Join(filepath.Dir(path), ".tagged_"+filepath.Base(path))

	args := []string{"-i", path, "-y", "-c", "copy"}
	if meta.Title != "" {
		args = append(args, "-metadata", "title="+meta.Title)
	}
	if meta.Uploader != "" {
		args = append(args, "-metadata", "artist="+meta.Uploader)
	}
	args = append(args, tmpPath)

	result, err := t.runner.Run(ctx, domain.Command{
		Binary:  t.ffmpegBinary,
		Args:    args,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("metadata remux failed: %w", err)
	}
	if result.ExitCode != 0 {
		os.Remove(tmpPath)
		return fmt.Errorf("metadata remux exited %d: %s", result.ExitCode, lastLine(result.Stderr))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to swap tagged file: %w", err)
	}
	t.logger.Debug("embedded audio metadata",
		zap.String("file", filepath.Base(path)),
		zap.String("title", meta.Title))
	return nil
}
