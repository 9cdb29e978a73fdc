package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

// ErrCannotCancel is returned when cancellation is requested for a
// job that already reached a terminal state. Callers report it back
// as "cannot cancel", not as a server error.
var ErrCannotCancel = errors.New("job already in terminal state")

// ErrCannotRestart is returned when a restart is requested for a job
// that is not in the failed state.
var ErrCannotRestart = errors.New("only failed jobs can be restarted")

// JobService exposes the caller-facing job operations: enqueueing,
// inspection, cancellation and explicit re-runs. All state changes go
// through the repository's guarded transitions.
type JobService struct {
	jobs    domain.JobRepository
	catalog domain.CatalogRepository
	logger  *zap.Logger
}

// NewJobService creates a new job service
func NewJobService(jobs domain.JobRepository, catalog domain.CatalogRepository, logger *zap.Logger) *JobService {
	return &JobService{
		jobs:    jobs,
		catalog: catalog,
		logger:  logger,
	}
}

// Enqueue creates a pending download job for a video link. If an
// active job already exists for the link it is returned instead of
// creating a duplicate.
func (s *JobService) Enqueue(userID, courseID, videoLinkID string) (*domain.DownloadJob, error) {
	link, err := s.catalog.FindVideoLink(videoLinkID)
	if err != nil {
		return nil, fmt.Errorf("video link lookup failed: %w", err)
	}
	if link == nil {
		return nil, domain.ErrNotFound
	}

	existing, err := s.jobs.FindActiveByVideoLink(videoLinkID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if existing != nil {
		s.logger.Info("Returning existing active job for video link",
			zap.String("job_id", existing.ID),
			zap.String("video_link_id", videoLinkID))
		return existing, nil
	}

	job := domain.NewDownloadJob(userID, courseID, videoLinkID)
	if err := s.jobs.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Download job enqueued",
		zap.String("job_id", job.ID),
		zap.String("video_link_id", videoLinkID),
		zap.String("url", link.URL))

	return job, nil
}

// Get retrieves a job by ID
func (s *JobService) Get(id string) (*domain.DownloadJob, error) {
	return s.jobs.FindByID(id)
}

// List lists jobs with optional column filters
func (s *JobService) List(filters map[string]interface{}) ([]*domain.DownloadJob, error) {
	return s.jobs.FindAll(filters)
}

// Stats returns job counts per status
func (s *JobService) Stats() (*domain.JobStats, error) {
	return s.jobs.GetStats()
}

// Cancel marks a job cancelled. Only pending and downloading jobs can
// be cancelled; an in-flight fetch is not interrupted, but its
// eventual terminal write is rejected by the store guard.
func (s *JobService) Cancel(id string) (*domain.DownloadJob, error) {
	job, err := s.jobs.CancelJob(id)
	if err != nil {
		if err == domain.ErrStatusConflict {
			return nil, ErrCannotCancel
		}
		return nil, err
	}

	s.logger.Info("Download job cancelled", zap.String("job_id", id))
	return job, nil
}

// Restart moves a failed job back to pending with its retry budget
// reset, for an explicit caller-requested re-run.
func (s *JobService) Restart(id string) (*domain.DownloadJob, error) {
	job, err := s.jobs.RestartJob(id)
	if err != nil {
		if err == domain.ErrStatusConflict {
			return nil, ErrCannotRestart
		}
		return nil, err
	}

	s.logger.Info("Download job restarted", zap.String("job_id", id))
	return job, nil
}
