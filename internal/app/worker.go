package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

// DownloadWorker converts the backlog of pending jobs into bounded,
// concurrent, supervised fetches. A single instance owns the poll
// loop; the process enforces that with a lock file at startup.
type DownloadWorker struct {
	repo     domain.JobRepository
	fetcher  domain.Fetcher
	config   *domain.WorkerConfig
	download *domain.DownloadConfig
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	running  bool
	stopChan chan struct{}

	loopWg sync.WaitGroup
	jobWg  sync.WaitGroup
}

// NewDownloadWorker creates a new download worker
func NewDownloadWorker(
	repo domain.JobRepository,
	fetcher domain.Fetcher,
	config *domain.WorkerConfig,
	download *domain.DownloadConfig,
	logger *zap.Logger,
) *DownloadWorker {
	return &DownloadWorker{
		repo:     repo,
		fetcher:  fetcher,
		config:   config,
		download: download,
		logger:   logger,
		inflight: make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop. Jobs stranded in downloading from a
// previous crash are reset to pending first so they get picked up
// again.
func (w *DownloadWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("download worker already running")
	}
	w.running = true
	// A prior Stop closed the channel; the loop needs a fresh one
	w.stopChan = make(chan struct{})
	stop := w.stopChan
	w.mu.Unlock()

	if reset, err := w.repo.ResetOrphanedDownloading(); err != nil {
		w.logger.Error("Failed to reset orphaned jobs", zap.Error(err))
	} else if reset > 0 {
		w.logger.Info("Reset orphaned downloading jobs", zap.Int64("count", reset))
	}

	w.logger.Info("Download worker started",
		zap.Int("max_concurrent", w.config.MaxConcurrentDownloads),
		zap.Duration("poll_interval", w.config.PollInterval))

	w.loopWg.Add(1)
	go w.run(ctx, stop)

	return nil
}

// Stop signals the poll loop to exit after the current cycle.
// In-flight fetches are not cancelled; they run to completion under
// their own supervision. Use Wait to block until they finish.
func (w *DownloadWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("download worker not running")
	}
	w.running = false
	stop := w.stopChan
	w.mu.Unlock()

	close(stop)
	w.loopWg.Wait()

	w.logger.Info("Download worker stopped")
	return nil
}

// Wait blocks until all in-flight jobs have finished
func (w *DownloadWorker) Wait() {
	w.jobWg.Wait()
}

// IsRunning returns whether the worker loop is active
func (w *DownloadWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// InflightCount returns the number of jobs currently being fetched
func (w *DownloadWorker) InflightCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

func (w *DownloadWorker) run(ctx context.Context, stop <-chan struct{}) {
	defer w.loopWg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker loop exiting", zap.String("reason", "context_cancelled"))
			return
		case <-stop:
			w.logger.Info("Worker loop exiting", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			// A bad cycle must never halt future polling
			if err := w.pollOnce(ctx); err != nil {
				w.logger.Error("Poll cycle failed", zap.Error(err))
			}
		}
	}
}

// pollOnce claims pending jobs up to the remaining capacity and
// launches one fetch goroutine per claimed job. The in-flight set is
// reserved before the store claim so a slow claim cannot race a
// subsequent poll into double-dispatching the same job.
func (w *DownloadWorker) pollOnce(ctx context.Context) error {
	w.mu.Lock()
	slots := w.config.MaxConcurrentDownloads - len(w.inflight)
	w.mu.Unlock()

	if slots <= 0 {
		return nil
	}

	now := time.Now()
	jobs, err := w.repo.FindClaimable(slots, now)
	if err != nil {
		return fmt.Errorf("failed to fetch claimable jobs: %w", err)
	}

	for _, job := range jobs {
		if !w.reserve(job.ID) {
			continue
		}

		claimed, err := w.repo.ClaimJob(job.ID, now)
		if err != nil {
			// Another worker won the claim, or the job moved on
			w.release(job.ID)
			if err != domain.ErrStatusConflict {
				w.logger.Error("Failed to claim job", zap.String("job_id", job.ID), zap.Error(err))
			}
			continue
		}

		w.logger.Info("Claimed download job",
			zap.String("job_id", claimed.ID),
			zap.Int("retry_count", claimed.RetryCount))

		w.jobWg.Add(1)
		go w.executeJob(ctx, claimed)
	}

	return nil
}

// reserve adds a job id to the in-flight set, returning false if it
// was already present.
func (w *DownloadWorker) reserve(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[id]; ok {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *DownloadWorker) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
}

// executeJob runs one fetch attempt and applies the retry policy on
// completion. The in-flight slot is released on every path, and an
// orchestration panic fails the job directly without retry.
func (w *DownloadWorker) executeJob(ctx context.Context, job *domain.DownloadJob) {
	defer w.jobWg.Done()
	defer w.release(job.ID)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic while executing job",
				zap.String("job_id", job.ID),
				zap.Any("panic", r))
			if _, err := w.repo.FailJob(job.ID, fmt.Sprintf("internal error: %v", r)); err != nil && err != domain.ErrStatusConflict {
				w.logger.Error("Failed to record job failure", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()

	jctx, err := w.repo.JobContext(job.ID)
	if err != nil {
		w.failJob(job.ID, fmt.Sprintf("failed to load job context: %v", err))
		return
	}

	destDir := filepath.Join(w.download.BaseDir, SanitizeDirName(jctx.CourseName))

	result, err := w.fetcher.Fetch(ctx, jctx.VideoURL, destDir, w.progressFunc(job.ID))
	if err != nil {
		w.handleFetchFailure(job, err)
		return
	}

	if _, err := w.repo.CompleteJob(job.ID, result.OutputPath, result.FileSize); err != nil {
		if err == domain.ErrStatusConflict {
			// Cancelled while downloading; the terminal state wins
			w.logger.Warn("Discarding completion for job no longer downloading",
				zap.String("job_id", job.ID))
			return
		}
		w.logger.Error("Failed to complete job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	w.logger.Info("Download job completed",
		zap.String("job_id", job.ID),
		zap.String("output_path", result.OutputPath),
		zap.Int64("file_size", result.FileSize))
}

// handleFetchFailure requeues transient failures while retries remain
// and fails the job otherwise. Permanent fetch errors short-circuit
// to failed regardless of the retry budget.
func (w *DownloadWorker) handleFetchFailure(job *domain.DownloadJob, fetchErr error) {
	if !domain.IsPermanentFetchError(fetchErr) && job.CanRetry(w.config.MaxRetries) {
		nextAttempt := time.Now().Add(w.backoff(job.RetryCount))
		if _, err := w.repo.RequeueJob(job.ID, fetchErr.Error(), nextAttempt); err != nil {
			if err == domain.ErrStatusConflict {
				w.logger.Warn("Discarding retry for job no longer downloading",
					zap.String("job_id", job.ID))
				return
			}
			w.logger.Error("Failed to requeue job", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		w.logger.Warn("Download attempt failed, requeued",
			zap.String("job_id", job.ID),
			zap.Int("retry", job.RetryCount+1),
			zap.Int("max_retries", w.config.MaxRetries),
			zap.Time("next_attempt_at", nextAttempt),
			zap.Error(fetchErr))
		return
	}

	w.failJob(job.ID, fetchErr.Error())
	w.logger.Error("Download job failed",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount),
		zap.Error(fetchErr))
}

func (w *DownloadWorker) failJob(id, msg string) {
	if _, err := w.repo.FailJob(id, msg); err != nil {
		if err == domain.ErrStatusConflict {
			w.logger.Warn("Discarding failure for job no longer downloading", zap.String("job_id", id))
			return
		}
		w.logger.Error("Failed to record job failure", zap.String("job_id", id), zap.Error(err))
	}
}

// progressFunc returns a progress callback that coalesces store
// writes: at most one per ProgressWriteInterval, or on a jump of at
// least five percent. The final completion write always carries the
// exact size, so coalescing never changes the observable end state.
func (w *DownloadWorker) progressFunc(jobID string) domain.ProgressFunc {
	var mu sync.Mutex
	var lastWrite time.Time
	lastPercent := -1

	return func(downloaded, total int64) {
		mu.Lock()
		defer mu.Unlock()

		percent := lastPercent
		var totalPtr *int64
		if total > 0 {
			percent = int(downloaded * 100 / total)
			if percent > 100 {
				percent = 100
			}
			t := total
			totalPtr = &t
		}
		if percent < 0 {
			percent = 0
		}
		// A growing total-bytes estimate must not walk the percent back.
		if percent < lastPercent {
			percent = lastPercent
		}

		now := time.Now()
		if now.Sub(lastWrite) < w.config.ProgressWriteInterval && percent-lastPercent < 5 {
			return
		}
		lastWrite = now
		lastPercent = percent

		if err := w.repo.UpdateProgress(jobID, percent, downloaded, totalPtr); err != nil {
			w.logger.Debug("Failed to update progress", zap.String("job_id", jobID), zap.Error(err))
		}
	}
}

// backoff computes the delay before the next attempt from the number
// of attempts already made: base * 2^retryCount, capped.
func (w *DownloadWorker) backoff(retryCount int) time.Duration {
	d := w.config.RetryBackoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= w.config.RetryBackoffMax {
			return w.config.RetryBackoffMax
		}
	}
	if d > w.config.RetryBackoffMax {
		d = w.config.RetryBackoffMax
	}
	return d
}

// SanitizeDirName strips characters that are unsafe in directory
// names and bounds the length, mirroring how course names become
// output subdirectories.
func SanitizeDirName(name string) string {
	const invalid = `<>:"/\|?*`
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalid, r) {
			return '_'
		}
		return r
	}, name)

	const maxLength = 100
	if len(cleaned) > maxLength {
		// Truncate on a rune boundary so multi-byte names stay valid
		runes := []rune(cleaned)
		if len(runes) > maxLength {
			runes = runes[:maxLength]
		}
		cleaned = string(runes)
	}
	return cleaned
}
