package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of a download job
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

// DownloadJob tracks one video download from request to completion
// or terminal failure.
type DownloadJob struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"not null;index"`
	CourseID    string    `json:"course_id" gorm:"not null;index"`
	VideoLinkID string    `json:"video_link_id" gorm:"not null;index"`
	Status      JobStatus `json:"status" gorm:"not null;index"`

	// Progress tracking
	ProgressPercent int    `json:"progress_percent" gorm:"default:0"`
	DownloadedBytes int64  `json:"downloaded_bytes" gorm:"default:0"`
	TotalBytes      *int64 `json:"total_bytes,omitempty"`

	// Retry bookkeeping
	RetryCount    int        `json:"retry_count" gorm:"default:0"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty" gorm:"type:text"`

	// Output info, set only on completion
	OutputPath    string `json:"output_path,omitempty"`
	FileSizeBytes *int64 `json:"file_size_bytes,omitempty"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewDownloadJob creates a new pending download job for a video link
func NewDownloadJob(userID, courseID, videoLinkID string) *DownloadJob {
	now := time.Now()
	return &DownloadJob{
		ID:          uuid.New().String(),
		UserID:      userID,
		CourseID:    courseID,
		VideoLinkID: videoLinkID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTerminal reports whether the job is in a terminal state.
// Terminal jobs accept no further transitions.
func (j *DownloadJob) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsActive reports whether the job is still moving through the
// pipeline (pending or downloading).
func (j *DownloadJob) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusDownloading
}

// CanRetry reports whether a failed attempt may be requeued
func (j *DownloadJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries
}

// IsTerminalStatus reports whether a status is terminal
func IsTerminalStatus(s JobStatus) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ValidStatus checks if a status value is one of the known statuses
func ValidStatus(s JobStatus) bool {
	switch s {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the edge from -> to is legal.
// The allowed edges are:
//
//	pending     -> downloading, cancelled
//	downloading -> completed, pending (retry), failed, cancelled
//
// Terminal states have no outgoing edges.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusDownloading || to == StatusCancelled
	case StatusDownloading:
		return to == StatusCompleted || to == StatusPending || to == StatusFailed || to == StatusCancelled
	}
	return false
}
