package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/compress"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/internal/progress"
)

// Compressor shrinks a file to fit the delivery budget
type Compressor interface {
	EnsureWithinBudget(ctx context.Context, filePath string, budget int64, notify compress.ProgressNotifier) (string, int64, error)
}

// Tagger embeds metadata into a finished deliverable
type Tagger interface {
	Tag(ctx context.Context, path string, meta domain.MediaMetadata) error
}

// Introspector probes an asset for its available formats
type Introspector interface {
	Analyze(ctx context.Context, sourceURL string) ([]domain.MediaFormat, domain.MediaMetadata, error)
}

// Orchestrator drives one request through the full pipeline: classify,
// negotiate, race, size check, compress, deliver. Each request owns a
// private scratch directory; on failure nothing survives, on success
// only the deliverable does.
type Orchestrator struct {
	cfg          *domain.Config
	negotiator   *Negotiator
	racer        *Racer
	compressor   Compressor
	auth         domain.AuthProvider
	history      domain.HistoryRepository
	tagger       Tagger
	introspector Introspector
	registry     *Registry
	sink         domain.ProgressSink
	logger       *zap.Logger
}

// OrchestratorOptions carries the collaborators wired in at startup.
// History, Tagger, Introspector and Sink are optional.
type OrchestratorOptions struct {
	Config       *domain.Config
	Executors    []domain.StrategyExecutor
	Compressor   Compressor
	Auth         domain.AuthProvider
	History      domain.HistoryRepository
	Tagger       Tagger
	Introspector Introspector
	Registry     *Registry
	Sink         domain.ProgressSink
	Logger       *zap.Logger
}

// NewOrchestrator wires up the download pipeline
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Orchestrator{
		cfg:          opts.Config,
		negotiator:   NewNegotiator(),
		racer:        NewRacer(opts.Executors, logger),
		compressor:   opts.Compressor,
		auth:         opts.Auth,
		history:      opts.History,
		tagger:       opts.Tagger,
		introspector: opts.Introspector,
		registry:     registry,
		sink:         opts.Sink,
		logger:       logger,
	}
}

// Registry exposes the live request tracker
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Submit registers a request and processes it on a new goroutine,
// returning immediately with the request ID.
func (o *Orchestrator) Submit(ctx context.Context, sourceURL string, tier domain.QualityTier, delivery domain.Delivery) string {
	request := domain.NewDownloadRequest(sourceURL, tier, o.cfg.Download.SizeBudgetBytes)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.registry.Add(request, cancel)

	go func() {
		defer cancel()
		if _, err := o.process(runCtx, request, delivery); err != nil {
			o.logger.Warn("request failed",
				zap.String("request_id", request.ID),
				zap.String("url", sourceURL),
				zap.Error(err))
		}
	}()
	return request.ID
}

// Process runs a request synchronously and returns the artifact
func (o *Orchestrator) Process(ctx context.Context, sourceURL string, tier domain.QualityTier, delivery domain.Delivery) (*domain.DeliverableArtifact, error) {
	request := domain.NewDownloadRequest(sourceURL, tier, o.cfg.Download.SizeBudgetBytes)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.registry.Add(request, cancel)
	return o.process(runCtx, request, delivery)
}

func (o *Orchestrator) process(ctx context.Context, request *domain.DownloadRequest, delivery domain.Delivery) (artifact *domain.DeliverableArtifact, err error) {
	started := time.Now()
	var outcome *domain.StrategyOutcome
	compressed := false

	defer func() {
		o.registry.Finish(request.ID, artifact, err)
		o.record(request, outcome, artifact, compressed, started, err)
	}()

	// Classification is total: unsupported hosts fall through to the
	// generic extractor via the package strategy.
	request.Platform = domain.Classify(request.SourceURL)
	o.registry.SetPlatform(request.ID, request.Platform)
	o.registry.SetState(request.ID, domain.StateClassified)
	o.logger.Info("request classified",
		zap.String("request_id", request.ID),
		zap.String("platform", string(request.Platform)),
		zap.String("tier", string(request.RequestedTier)))

	if o.auth != nil {
		request.Auth = o.auth.AuthFor(request.Platform)
	}

	tempDir, err := os.MkdirTemp(o.cfg.Download.TempRoot, "mediafetch-"+request.ID[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	request.TempDir = tempDir
	// Everything under the scratch dir is disposable. The deliverable is
	// moved out before this runs.
	defer os.RemoveAll(tempDir)

	reporter := progress.NewReporter(request.ID, o.requestSink(request.ID), o.cfg.Download.ProgressInterval, o.logger)
	request.Progress = reporter.Report

	profiles := o.negotiator.Negotiate(request.Platform, request.RequestedTier, o.probeFormats(ctx, request))
	o.registry.SetState(request.ID, domain.StateNegotiated)
	reporter.StageChange(domain.StagePreparing, "Negotiating quality")

	o.registry.SetState(request.ID, domain.StateRacing)
	reporter.StageChange(domain.StageDownloading, "Downloading")

	raceCtx, cancelRace := context.WithTimeout(ctx, o.cfg.Download.RequestTimeout)
	outcome, err = o.racer.Race(raceCtx, request, profiles)
	cancelRace()
	if err != nil {
		if raceCtx.Err() != nil && ctx.Err() == nil {
			err = domain.NewStrategyError(domain.FailureNetworkTimeout,
				fmt.Errorf("request exceeded %s: %w", o.cfg.Download.RequestTimeout, err))
		}
		return nil, err
	}
	o.registry.SetState(request.ID, domain.StateDownloaded)

	info, err := os.Stat(outcome.FilePath)
	if err != nil {
		return nil, fmt.Errorf("winning file vanished: %w", err)
	}
	size := info.Size()
	o.registry.SetState(request.ID, domain.StateSizeChecked)
	reporter.StageChange(domain.StageVerifying, "Checking size")

	filePath := outcome.FilePath
	if size > request.SizeBudgetBytes && o.compressor != nil {
		o.registry.SetState(request.ID, domain.StateCompressing)
		filePath, size, err = o.compressor.EnsureWithinBudget(ctx, filePath, request.SizeBudgetBytes, reporter)
		if err != nil {
			return nil, err
		}
		compressed = true
	}
	o.registry.SetState(request.ID, domain.StateReady)

	if o.tagger != nil && outcome.Metadata.AudioOnly {
		if tagErr := o.tagger.Tag(ctx, filePath, outcome.Metadata); tagErr != nil {
			// Metadata is nice to have; an untagged file still ships.
			o.logger.Warn("audio tagging failed",
				zap.String("request_id", request.ID),
				zap.Error(tagErr))
		}
	}

	artifact = &domain.DeliverableArtifact{
		FilePath:  filePath,
		SizeBytes: size,
		Metadata:  outcome.Metadata,
	}

	if delivery != nil {
		reporter.StageChange(domain.StageUploading, "Uploading")
		if err = delivery.Deliver(request, artifact); err != nil {
			artifact = nil
			return nil, fmt.Errorf("delivery failed: %w", err)
		}
	} else {
		finalPath, moveErr := o.moveToOutput(artifact.FilePath, request.ID)
		if moveErr != nil {
			artifact = nil
			return nil, moveErr
		}
		artifact.FilePath = finalPath
	}
	o.registry.SetState(request.ID, domain.StateDelivered)

	o.logger.Info("request delivered",
		zap.String("request_id", request.ID),
		zap.String("strategy", string(outcome.Strategy)),
		zap.Int64("size_bytes", size),
		zap.Bool("compressed", compressed),
		zap.Duration("elapsed", time.Since(started)))
	return artifact, nil
}

// probeFormats asks the introspector what the source offers so the
// negotiator can plan from real formats. Probe failures are not fatal:
// negotiation falls back to the static ladder.
func (o *Orchestrator) probeFormats(ctx context.Context, request *domain.DownloadRequest) []domain.MediaFormat {
	if o.introspector == nil {
		return nil
	}
	switch request.Platform {
	case domain.PlatformDirect, domain.PlatformSegmented, domain.PlatformUnknown:
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	formats, _, err := o.introspector.Analyze(probeCtx, request.SourceURL)
	if err != nil {
		o.logger.Debug("format probe failed, using static ladder",
			zap.String("request_id", request.ID),
			zap.Error(err))
		return nil
	}
	return formats
}

// requestSink fans updates out to the registry and the external sink
func (o *Orchestrator) requestSink(requestID string) domain.ProgressSink {
	return domain.ProgressSinkFunc(func(update domain.ProgressUpdate) {
		o.registry.SetProgress(requestID, update)
		if o.sink != nil {
			o.sink.Emit(update)
		}
	})
}

// moveToOutput relocates the deliverable out of the scratch directory
// before it gets torn down.
func (o *Orchestrator) moveToOutput(filePath, requestID string) (string, error) {
	outDir := o.cfg.Download.OutputDir
	if outDir == "" {
		outDir = os.TempDir()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	finalPath := filepath.Join(outDir, requestID[:8]+"-"+filepath.Base(filePath))
	if err := os.Rename(filePath, finalPath); err != nil {
		// Scratch and output may live on different filesystems.
		if copyErr := copyFile(filePath, finalPath); copyErr != nil {
			return "", fmt.Errorf("failed to move deliverable: %w", copyErr)
		}
	}
	return finalPath, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// record persists the terminal history entry
func (o *Orchestrator) record(request *domain.DownloadRequest, outcome *domain.StrategyOutcome, artifact *domain.DeliverableArtifact, compressed bool, started time.Time, failure error) {
	if o.history == nil {
		return
	}
	rec := &domain.DownloadRecord{
		ID:         request.ID,
		URL:        request.SourceURL,
		Platform:   request.Platform,
		Tier:       request.RequestedTier,
		Outcome:    domain.OutcomeDelivered,
		Compressed: compressed,
		ElapsedMS:  time.Since(started).Milliseconds(),
	}
	if outcome != nil {
		rec.Strategy = outcome.Strategy
	}
	if artifact != nil {
		rec.SizeBytes = artifact.SizeBytes
	}
	if failure != nil {
		rec.Outcome = domain.OutcomeFailed
		var ex *domain.ExhaustedError
		switch {
		case errors.Is(failure, domain.ErrCancelled) || errors.Is(failure, context.Canceled):
			rec.Outcome = domain.OutcomeCancelled
			rec.FailureKind = "cancelled"
		case errors.As(failure, &ex):
			rec.FailureKind = "all_strategies_exhausted"
		case errors.Is(failure, domain.ErrBudgetUnattainable):
			rec.FailureKind = "budget_unattainable"
		default:
			rec.FailureKind = string(domain.KindOf(failure))
		}
	}
	if err := o.history.Record(rec); err != nil {
		o.logger.Error("failed to write history record",
			zap.String("request_id", request.ID),
			zap.Error(err))
	}
}
