package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

// CatalogService maintains the synced Classroom metadata. It accepts
// course trees from the sync collaborator and upserts them keyed by
// their Google identifiers, so re-imports are idempotent.
type CatalogService struct {
	catalog domain.CatalogRepository
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(catalog domain.CatalogRepository, logger *zap.Logger) *CatalogService {
	return &CatalogService{catalog: catalog, logger: logger}
}

// CourseImport is one course with its coursework and video links as
// delivered by the sync collaborator.
type CourseImport struct {
	Course     *domain.Course
	Coursework []*CourseworkImport
}

// CourseworkImport is one coursework item with the video links
// extracted from it.
type CourseworkImport struct {
	Coursework *domain.Coursework
	VideoLinks []*domain.VideoLink
}

// ImportCourses upserts a batch of synced courses with their
// coursework and video links. Missing IDs are assigned here so the
// collaborator only needs to provide Google identifiers.
func (s *CatalogService) ImportCourses(userID string, imports []*CourseImport) error {
	now := time.Now()

	var courses []*domain.Course
	var coursework []*domain.Coursework
	var links []*domain.VideoLink

	for _, imp := range imports {
		course := imp.Course
		// Reuse the stored row for a course we have seen before so
		// coursework keeps pointing at the same ID across syncs
		if existing, err := s.catalog.FindCourseByGoogleID(course.GoogleCourseID); err != nil {
			return fmt.Errorf("course lookup failed: %w", err)
		} else if existing != nil {
			course.ID = existing.ID
		}
		if course.ID == "" {
			course.ID = uuid.New().String()
		}
		course.UserID = userID
		course.LastSyncedAt = &now
		courses = append(courses, course)

		for _, cwImp := range imp.Coursework {
			cw := cwImp.Coursework
			if existing, err := s.catalog.FindCourseworkByGoogleID(cw.GoogleCourseworkID); err != nil {
				return fmt.Errorf("coursework lookup failed: %w", err)
			} else if existing != nil {
				cw.ID = existing.ID
			}
			if cw.ID == "" {
				cw.ID = uuid.New().String()
			}
			cw.CourseID = course.ID
			coursework = append(coursework, cw)

			for _, link := range cwImp.VideoLinks {
				if link.ID == "" {
					link.ID = uuid.New().String()
				}
				link.CourseworkID = cw.ID
				links = append(links, link)
			}
		}
	}

	if err := s.catalog.UpsertCourses(courses); err != nil {
		return fmt.Errorf("failed to upsert courses: %w", err)
	}
	if err := s.catalog.UpsertCoursework(coursework); err != nil {
		return fmt.Errorf("failed to upsert coursework: %w", err)
	}
	if err := s.catalog.UpsertVideoLinks(links); err != nil {
		return fmt.Errorf("failed to upsert video links: %w", err)
	}

	s.logger.Info("Imported course catalog",
		zap.String("user_id", userID),
		zap.Int("courses", len(courses)),
		zap.Int("coursework", len(coursework)),
		zap.Int("video_links", len(links)))

	return nil
}

// GetCourse retrieves a course by ID
func (s *CatalogService) GetCourse(id string) (*domain.Course, error) {
	return s.catalog.FindCourse(id)
}

// ListCourses lists courses, optionally scoped to a user
func (s *CatalogService) ListCourses(userID string) ([]*domain.Course, error) {
	return s.catalog.ListCourses(userID)
}

// ListVideoLinks lists the video links found in a course, or every
// known link when courseID is empty
func (s *CatalogService) ListVideoLinks(courseID string) ([]*domain.VideoLink, error) {
	return s.catalog.ListVideoLinks(courseID)
}
