package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/api"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/app"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/infrastructure"
	"github.com/vinicius-ssantos/classroom-downloader-api/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file")

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

	log.Info("Starting classroom-downloader server",
		zap.String("version", "1.0.0"),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Int("max_concurrent_downloads", config.Worker.MaxConcurrentDownloads))

	if err := createDirectories(config); err != nil {
		log.Fatal("Failed to create directories", zap.Error(err))
	}

	// One worker per database. A second server against the same lock
	// file refuses to start instead of double-claiming jobs.
	workerLock := flock.New(config.Download.LockFile)
	locked, err := workerLock.TryLock()
	if err != nil {
		log.Fatal("Failed to acquire worker lock", zap.Error(err))
	}
	if !locked {
		log.Fatal("Another server instance is already running",
			zap.String("lock_file", config.Download.LockFile))
	}
	defer workerLock.Unlock()

	repo, err := infrastructure.NewSQLiteRepository(config.Database.Path)
	if err != nil {
		log.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	fetcher := infrastructure.NewYTDLPFetcher(&config.Fetcher, config.Download.LogsDir, log)

	worker := app.NewDownloadWorker(repo, fetcher, &config.Worker, &config.Download, log)
	jobSvc := app.NewJobService(repo, repo, log)
	catalogSvc := app.NewCatalogService(repo, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Worker.AutoStart {
		if err := worker.Start(ctx); err != nil {
			log.Fatal("Failed to start download worker", zap.Error(err))
		}
	}

	router := api.SetupRouter(jobSvc, catalogSvc, worker, log)

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
	log.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if worker.IsRunning() {
		if err := worker.Stop(); err != nil {
			log.Error("Error stopping download worker", zap.Error(err))
		}
	}
	// Let in-flight fetches finish; interrupted ones are requeued by
	// orphan recovery on the next start anyway.
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached with downloads still in flight")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		filepath.Dir(config.Database.Path),
		config.Download.BaseDir,
		config.Download.LogsDir,
		filepath.Dir(config.Download.LockFile),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
