package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ErrStatusConflict is returned when a guarded transition finds the
// job in a different status than expected. Transitions against
// terminal jobs surface as this error, never as silent overwrites.
var ErrStatusConflict = errors.New("job status conflict")

// JobRepository defines the persistence contract for download jobs.
// Every transition method is atomic with respect to the expected
// current status: it either moves the job along a legal edge or
// returns ErrStatusConflict.
type JobRepository interface {
	// Create creates a new job
	Create(job *DownloadJob) error

	// FindByID finds a job by ID
	FindByID(id string) (*DownloadJob, error)

	// FindClaimable returns up to limit pending jobs ordered by
	// creation time (oldest first), skipping jobs whose next attempt
	// is scheduled after now.
	FindClaimable(limit int, now time.Time) ([]*DownloadJob, error)

	// FindActiveByVideoLink returns a pending or downloading job for
	// the given video link, or nil if none exists.
	FindActiveByVideoLink(videoLinkID string) (*DownloadJob, error)

	// ClaimJob moves pending -> downloading. StartedAt is set only on
	// the first claim; retries keep the original attempt anchor.
	ClaimJob(id string, now time.Time) (*DownloadJob, error)

	// CompleteJob moves downloading -> completed and marks the
	// associated video link as downloaded in the same transaction.
	CompleteJob(id string, outputPath string, fileSize int64) (*DownloadJob, error)

	// RequeueJob moves downloading -> pending for a retry: increments
	// the retry count, records the error, resets progress counters
	// and schedules the next attempt.
	RequeueJob(id string, errMsg string, nextAttempt time.Time) (*DownloadJob, error)

	// FailJob moves downloading -> failed with a final error message
	FailJob(id string, errMsg string) (*DownloadJob, error)

	// CancelJob moves pending or downloading -> cancelled
	CancelJob(id string) (*DownloadJob, error)

	// RestartJob moves failed -> pending with retry bookkeeping reset,
	// for an explicit caller-requested re-run.
	RestartJob(id string) (*DownloadJob, error)

	// UpdateProgress records progress for a job that is still
	// downloading. Writes against jobs in any other status are
	// rejected with ErrStatusConflict.
	UpdateProgress(id string, percent int, downloaded int64, total *int64) error

	// ResetOrphanedDownloading returns jobs stranded in downloading
	// (no live owner after a crash) back to pending.
	ResetOrphanedDownloading() (int64, error)

	// JobContext returns the data needed to execute a job
	JobContext(id string) (*JobContext, error)

	// FindByStatus finds jobs by status
	FindByStatus(status JobStatus) ([]*DownloadJob, error)

	// FindAll finds jobs with optional column filters
	FindAll(filters map[string]interface{}) ([]*DownloadJob, error)

	// CountByStatus returns the number of jobs in a status
	CountByStatus(status JobStatus) (int64, error)

	// GetStats returns job counts per status
	GetStats() (*JobStats, error)
}

// JobContext carries the collaborator data a fetch needs: the source
// URL and the course name used for the output subdirectory.
type JobContext struct {
	Job        *DownloadJob
	VideoURL   string
	VideoTitle string
	CourseName string
}

// JobStats represents download job statistics
type JobStats struct {
	Total       int64 `json:"total"`
	Pending     int64 `json:"pending"`
	Downloading int64 `json:"downloading"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Cancelled   int64 `json:"cancelled"`

	TotalBytesDownloaded int64 `json:"total_bytes_downloaded"`
}

// CatalogRepository defines persistence for the synced Classroom
// metadata (users, courses, coursework, video links).
type CatalogRepository interface {
	UpsertUser(user *User) error
	UpsertCourses(courses []*Course) error
	UpsertCoursework(items []*Coursework) error
	UpsertVideoLinks(links []*VideoLink) error

	FindCourse(id string) (*Course, error)
	FindCourseByGoogleID(googleID string) (*Course, error)
	FindCourseworkByGoogleID(googleID string) (*Coursework, error)
	ListCourses(userID string) ([]*Course, error)
	FindVideoLink(id string) (*VideoLink, error)
	// ListVideoLinks lists the links in a course, or all links when
	// courseID is empty
	ListVideoLinks(courseID string) ([]*VideoLink, error)
}
