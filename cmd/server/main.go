package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/api"
	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/compress"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/internal/infrastructure"
	"github.com/yourusername/media-fetch-go/pkg/logger"
)

var configPath = flag.String("config", "", "Path to configuration file")

func main() {
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting media-fetch server",
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Int64("size_budget", config.Download.SizeBudgetBytes))

	history, err := infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize history store", zap.Error(err))
	}
	defer history.Close()

	runner := infrastructure.NewExecRunner(config.Download.CancelGrace, log)
	introspector := infrastructure.NewIntrospector(config.Strategies, runner, log)

	executors := []domain.StrategyExecutor{
		infrastructure.NewYTDLPExecutor(config.Strategies, runner, log),
		infrastructure.NewCookieExecutor(config.Strategies, runner, log),
		infrastructure.NewAPIExecutor(config.Strategies, log),
	}

	orchestrator := app.NewOrchestrator(app.OrchestratorOptions{
		Config:       config,
		Executors:    executors,
		Compressor:   compress.NewPipeline(config.Compress, runner, log),
		Auth:         infrastructure.NewConfigAuthProvider(config.Auth, log),
		History:      history,
		Tagger:       infrastructure.NewAudioTagger(config.Compress.FFmpegBinary, runner, log),
		Introspector: introspector,
		Logger:       log,
	})

	router := api.SetupRouter(config, orchestrator, introspector, history, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
