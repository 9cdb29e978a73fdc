package domain

import "time"

// User stores the Google account that owns courses and jobs
type User struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Email      string    `json:"email" gorm:"uniqueIndex;not null"`
	Name       string    `json:"name" gorm:"not null"`
	GoogleID   string    `json:"google_id" gorm:"uniqueIndex;not null"`
	PictureURL string    `json:"picture_url,omitempty"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Course represents a Google Classroom course
type Course struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	GoogleCourseID string     `json:"google_course_id" gorm:"uniqueIndex;not null"`
	UserID         string     `json:"user_id" gorm:"not null;index"`
	Name           string     `json:"name" gorm:"not null"`
	Section        string     `json:"section,omitempty"`
	Description    string     `json:"description,omitempty" gorm:"type:text"`
	Room           string     `json:"room,omitempty"`
	State          string     `json:"state" gorm:"not null"` // ACTIVE, ARCHIVED, ...
	AlternateLink  string     `json:"alternate_link,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Coursework represents an assignment or material within a course
type Coursework struct {
	ID                 string     `json:"id" gorm:"primaryKey"`
	GoogleCourseworkID string     `json:"google_coursework_id" gorm:"uniqueIndex;not null"`
	CourseID           string     `json:"course_id" gorm:"not null;index"`
	Title              string     `json:"title" gorm:"not null"`
	Description        string     `json:"description,omitempty" gorm:"type:text"`
	WorkType           string     `json:"work_type" gorm:"not null"` // ASSIGNMENT, MATERIAL, ...
	State              string     `json:"state" gorm:"not null"`     // PUBLISHED, DRAFT, DELETED
	AlternateLink      string     `json:"alternate_link,omitempty"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// VideoLink is a video URL found in coursework. The download pipeline
// reads the URL and writes back the downloaded marker on success.
type VideoLink struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	CourseworkID string    `json:"coursework_id" gorm:"not null;index;index:idx_coursework_url,unique"`
	URL          string    `json:"url" gorm:"not null;index;index:idx_coursework_url,unique"`
	Title        string    `json:"title,omitempty"`
	SourceType   string    `json:"source_type" gorm:"not null"` // youtube, drive, vimeo, ...
	DriveFileID  string    `json:"drive_file_id,omitempty" gorm:"index"`

	// Download tracking, written once per successful job
	IsDownloaded  bool   `json:"is_downloaded" gorm:"default:false;not null"`
	DownloadPath  string `json:"download_path,omitempty"`
	FileSizeBytes *int64 `json:"file_size_bytes,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
