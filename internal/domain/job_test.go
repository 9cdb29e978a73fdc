package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDownloadJob(t *testing.T) {
	job := NewDownloadJob("user-1", "course-1", "link-1")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, "course-1", job.CourseID)
	assert.Equal(t, "link-1", job.VideoLinkID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, 0, job.ProgressPercent)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

func TestDownloadJob_IsTerminal(t *testing.T) {
	job := NewDownloadJob("u", "c", "l")

	assert.False(t, job.IsTerminal())

	job.Status = StatusDownloading
	assert.False(t, job.IsTerminal())

	job.Status = StatusCompleted
	assert.True(t, job.IsTerminal())

	job.Status = StatusFailed
	assert.True(t, job.IsTerminal())

	job.Status = StatusCancelled
	assert.True(t, job.IsTerminal())
}

func TestDownloadJob_IsActive(t *testing.T) {
	job := NewDownloadJob("u", "c", "l")

	assert.True(t, job.IsActive())

	job.Status = StatusDownloading
	assert.True(t, job.IsActive())

	job.Status = StatusFailed
	assert.False(t, job.IsActive())
}

func TestDownloadJob_CanRetry(t *testing.T) {
	job := NewDownloadJob("u", "c", "l")

	assert.True(t, job.CanRetry(3))

	job.RetryCount = 2
	assert.True(t, job.CanRetry(3))

	job.RetryCount = 3
	assert.False(t, job.CanRetry(3))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{StatusPending, StatusDownloading, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusDownloading, StatusCompleted, true},
		{StatusDownloading, StatusPending, true},
		{StatusDownloading, StatusFailed, true},
		{StatusDownloading, StatusCancelled, true},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusFailed, StatusDownloading, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCancelled, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusPending))
	assert.True(t, ValidStatus(StatusDownloading))
	assert.True(t, ValidStatus(StatusCompleted))
	assert.True(t, ValidStatus(StatusFailed))
	assert.True(t, ValidStatus(StatusCancelled))
	assert.False(t, ValidStatus("paused"))
}
