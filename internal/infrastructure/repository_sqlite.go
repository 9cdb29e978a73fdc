package infrastructure

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

// SQLiteRepository implements domain.JobRepository and
// domain.CatalogRepository on SQLite via GORM. Every job transition
// is a conditional update guarded by the expected current status, so
// a lost race surfaces as ErrStatusConflict instead of a silent
// overwrite.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository opens the database and migrates the schema
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Course{},
		&domain.Coursework{},
		&domain.VideoLink{},
		&domain.DownloadJob{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// JobRepository implementation
// ============================================================================

// Create creates a new download job
func (r *SQLiteRepository) Create(job *domain.DownloadJob) error {
	return r.db.Create(job).Error
}

// FindByID finds a job by ID
func (r *SQLiteRepository) FindByID(id string) (*domain.DownloadJob, error) {
	var job domain.DownloadJob
	err := r.db.First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// FindClaimable returns pending jobs whose backoff window has passed,
// oldest first.
func (r *SQLiteRepository) FindClaimable(limit int, now time.Time) ([]*domain.DownloadJob, error) {
	var jobs []*domain.DownloadJob
	err := r.db.
		Where("status = ?", domain.StatusPending).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// FindActiveByVideoLink returns a pending or downloading job for the
// video link, or nil.
func (r *SQLiteRepository) FindActiveByVideoLink(videoLinkID string) (*domain.DownloadJob, error) {
	var job domain.DownloadJob
	err := r.db.
		Where("video_link_id = ? AND status IN ?", videoLinkID,
			[]domain.JobStatus{domain.StatusPending, domain.StatusDownloading}).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// transition performs a guarded status change: the update only
// applies while the job is still in one of the expected statuses.
func (r *SQLiteRepository) transition(tx *gorm.DB, id string, from []domain.JobStatus, to domain.JobStatus, updates map[string]interface{}) error {
	for _, f := range from {
		if !domain.CanTransition(f, to) {
			return fmt.Errorf("illegal transition %s -> %s", f, to)
		}
	}

	updates["status"] = to
	updates["updated_at"] = time.Now()

	res := tx.Model(&domain.DownloadJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&domain.DownloadJob{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrStatusConflict
	}
	return nil
}

// ClaimJob moves pending -> downloading. StartedAt is only set on the
// first claim so retries keep the original attempt anchor.
func (r *SQLiteRepository) ClaimJob(id string, now time.Time) (*domain.DownloadJob, error) {
	err := r.transition(r.db, id, []domain.JobStatus{domain.StatusPending}, domain.StatusDownloading,
		map[string]interface{}{
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
		})
	if err != nil {
		return nil, err
	}
	return r.FindByID(id)
}

// CompleteJob moves downloading -> completed and marks the video link
// downloaded in the same transaction.
func (r *SQLiteRepository) CompleteJob(id string, outputPath string, fileSize int64) (*domain.DownloadJob, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var job domain.DownloadJob
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		if err := r.transition(tx, id, []domain.JobStatus{domain.StatusDownloading}, domain.StatusCompleted,
			map[string]interface{}{
				"progress_percent": 100,
				"output_path":      outputPath,
				"file_size_bytes":  fileSize,
				"completed_at":     time.Now(),
			}); err != nil {
			return err
		}

		return tx.Model(&domain.VideoLink{}).
			Where("id = ?", job.VideoLinkID).
			Updates(map[string]interface{}{
				"is_downloaded":   true,
				"download_path":   outputPath,
				"file_size_bytes": fileSize,
				"updated_at":      time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(id)
}

// RequeueJob moves downloading -> pending for a retry
func (r *SQLiteRepository) RequeueJob(id string, errMsg string, nextAttempt time.Time) (*domain.DownloadJob, error) {
	err := r.transition(r.db, id, []domain.JobStatus{domain.StatusDownloading}, domain.StatusPending,
		map[string]interface{}{
			"retry_count":      gorm.Expr("retry_count + 1"),
			"error_message":    errMsg,
			"progress_percent": 0,
			"downloaded_bytes": 0,
			"total_bytes":      nil,
			"next_attempt_at":  nextAttempt,
		})
	if err != nil {
		return nil, err
	}
	return r.FindByID(id)
}

// FailJob moves downloading -> failed
func (r *SQLiteRepository) FailJob(id string, errMsg string) (*domain.DownloadJob, error) {
	err := r.transition(r.db, id, []domain.JobStatus{domain.StatusDownloading}, domain.StatusFailed,
		map[string]interface{}{
			"error_message": errMsg,
			"completed_at":  time.Now(),
		})
	if err != nil {
		return nil, err
	}
	return r.FindByID(id)
}

// CancelJob moves pending or downloading -> cancelled
func (r *SQLiteRepository) CancelJob(id string) (*domain.DownloadJob, error) {
	err := r.transition(r.db, id,
		[]domain.JobStatus{domain.StatusPending, domain.StatusDownloading},
		domain.StatusCancelled,
		map[string]interface{}{
			"completed_at": time.Now(),
		})
	if err != nil {
		return nil, err
	}
	return r.FindByID(id)
}

// RestartJob moves failed -> pending with retry bookkeeping reset.
// This is a caller-requested re-run, not part of the worker's own
// retry policy, so the legal-edge table does not apply.
func (r *SQLiteRepository) RestartJob(id string) (*domain.DownloadJob, error) {
	res := r.db.Model(&domain.DownloadJob{}).
		Where("id = ? AND status = ?", id, domain.StatusFailed).
		Updates(map[string]interface{}{
			"status":           domain.StatusPending,
			"retry_count":      0,
			"error_message":    "",
			"progress_percent": 0,
			"downloaded_bytes": 0,
			"total_bytes":      nil,
			"next_attempt_at":  nil,
			"completed_at":     nil,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(id); err != nil {
			return nil, err
		}
		return nil, domain.ErrStatusConflict
	}
	return r.FindByID(id)
}

// UpdateProgress records progress while a job is still downloading.
// Writes against any other status are rejected, which also covers
// progress arriving after a cancellation.
func (r *SQLiteRepository) UpdateProgress(id string, percent int, downloaded int64, total *int64) error {
	updates := map[string]interface{}{
		"progress_percent": percent,
		"downloaded_bytes": downloaded,
		"updated_at":       time.Now(),
	}
	if total != nil {
		updates["total_bytes"] = *total
	}
	res := r.db.Model(&domain.DownloadJob{}).
		Where("id = ? AND status = ?", id, domain.StatusDownloading).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}

// ResetOrphanedDownloading returns jobs stranded in downloading back
// to pending, for crash recovery at worker startup.
func (r *SQLiteRepository) ResetOrphanedDownloading() (int64, error) {
	res := r.db.Model(&domain.DownloadJob{}).
		Where("status = ?", domain.StatusDownloading).
		Updates(map[string]interface{}{
			"status":           domain.StatusPending,
			"progress_percent": 0,
			"downloaded_bytes": 0,
			"total_bytes":      nil,
			"updated_at":       time.Now(),
		})
	return res.RowsAffected, res.Error
}

// JobContext loads the job together with its video URL and course name
func (r *SQLiteRepository) JobContext(id string) (*domain.JobContext, error) {
	job, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}

	var row struct {
		VideoURL   string
		VideoTitle string
		CourseName string
	}
	err = r.db.Table("download_jobs").
		Select("video_links.url AS video_url, video_links.title AS video_title, courses.name AS course_name").
		Joins("JOIN video_links ON video_links.id = download_jobs.video_link_id").
		Joins("JOIN courses ON courses.id = download_jobs.course_id").
		Where("download_jobs.id = ?", id).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.VideoURL == "" {
		return nil, fmt.Errorf("job %s has no resolvable video link", id)
	}

	return &domain.JobContext{
		Job:        job,
		VideoURL:   row.VideoURL,
		VideoTitle: row.VideoTitle,
		CourseName: row.CourseName,
	}, nil
}

// FindByStatus finds jobs by status
func (r *SQLiteRepository) FindByStatus(status domain.JobStatus) ([]*domain.DownloadJob, error) {
	var jobs []*domain.DownloadJob
	err := r.db.Where("status = ?", status).Find(&jobs).Error
	return jobs, err
}

// FindAll finds jobs with optional column filters
func (r *SQLiteRepository) FindAll(filters map[string]interface{}) ([]*domain.DownloadJob, error) {
	var jobs []*domain.DownloadJob
	query := r.db

	for key, value := range filters {
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// CountByStatus returns the number of jobs in a status
func (r *SQLiteRepository) CountByStatus(status domain.JobStatus) (int64, error) {
	var count int64
	err := r.db.Model(&domain.DownloadJob{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// GetStats returns job counts per status
func (r *SQLiteRepository) GetStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{}

	if err := r.db.Model(&domain.DownloadJob{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.JobStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.DownloadJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StatusPending:
			stats.Pending = sc.Count
		case domain.StatusDownloading:
			stats.Downloading = sc.Count
		case domain.StatusCompleted:
			stats.Completed = sc.Count
		case domain.StatusFailed:
			stats.Failed = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	var totalBytes struct{ Sum int64 }
	if err := r.db.Model(&domain.DownloadJob{}).
		Select("COALESCE(SUM(file_size_bytes), 0) AS sum").
		Where("status = ?", domain.StatusCompleted).
		Scan(&totalBytes).Error; err != nil {
		return nil, err
	}
	stats.TotalBytesDownloaded = totalBytes.Sum

	return stats, nil
}

// ============================================================================
// CatalogRepository implementation
// ============================================================================

// UpsertUser inserts or updates a user keyed by primary key
func (r *SQLiteRepository) UpsertUser(user *domain.User) error {
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error
}

// UpsertCourses inserts or updates courses keyed by primary key
func (r *SQLiteRepository) UpsertCourses(courses []*domain.Course) error {
	if len(courses) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&courses).Error
}

// UpsertCoursework inserts or updates coursework keyed by primary key
func (r *SQLiteRepository) UpsertCoursework(items []*domain.Coursework) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&items).Error
}

// UpsertVideoLinks inserts or updates video links. Conflicts on the
// (coursework_id, url) pair update metadata but never touch the
// download tracking columns, so a re-sync cannot clear an
// is_downloaded marker.
func (r *SQLiteRepository) UpsertVideoLinks(links []*domain.VideoLink) error {
	if len(links) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "coursework_id"}, {Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "source_type", "drive_file_id", "updated_at"}),
	}).Create(&links).Error
}

// FindCourse finds a course by ID
func (r *SQLiteRepository) FindCourse(id string) (*domain.Course, error) {
	var course domain.Course
	err := r.db.First(&course, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

// FindCourseByGoogleID finds a course by its Google Classroom ID
func (r *SQLiteRepository) FindCourseByGoogleID(googleID string) (*domain.Course, error) {
	var course domain.Course
	err := r.db.First(&course, "google_course_id = ?", googleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

// FindCourseworkByGoogleID finds coursework by its Google Classroom ID
func (r *SQLiteRepository) FindCourseworkByGoogleID(googleID string) (*domain.Coursework, error) {
	var cw domain.Coursework
	err := r.db.First(&cw, "google_coursework_id = ?", googleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cw, nil
}

// ListCourses lists courses, optionally scoped to a user
func (r *SQLiteRepository) ListCourses(userID string) ([]*domain.Course, error) {
	var courses []*domain.Course
	query := r.db.Order("name ASC")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	err := query.Find(&courses).Error
	return courses, err
}

// FindVideoLink finds a video link by ID
func (r *SQLiteRepository) FindVideoLink(id string) (*domain.VideoLink, error) {
	var link domain.VideoLink
	err := r.db.First(&link, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// ListVideoLinks lists the video links found in a course, or every
// known link when courseID is empty.
func (r *SQLiteRepository) ListVideoLinks(courseID string) ([]*domain.VideoLink, error) {
	var links []*domain.VideoLink
	query := r.db.Order("video_links.created_at ASC")
	if courseID != "" {
		query = query.
			Joins("JOIN coursework ON coursework.id = video_links.coursework_id").
			Where("coursework.course_id = ?", courseID)
	}
	err := query.Find(&links).Error
	return links, err
}
