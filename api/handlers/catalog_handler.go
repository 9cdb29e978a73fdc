package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/app"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

// CatalogHandler handles course catalog HTTP requests
type CatalogHandler struct {
	catalog *app.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *app.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ImportRequest carries one sync batch from the Classroom collaborator
type ImportRequest struct {
	UserID  string          `json:"user_id" binding:"required"`
	Courses []*ImportCourse `json:"courses" binding:"required"`
}

// ImportCourse is a synced course with its coursework
type ImportCourse struct {
	GoogleCourseID string              `json:"google_course_id" binding:"required"`
	Name           string              `json:"name" binding:"required"`
	Section        string              `json:"section,omitempty"`
	Description    string              `json:"description,omitempty"`
	Room           string              `json:"room,omitempty"`
	State          string              `json:"state,omitempty"`
	AlternateLink  string              `json:"alternate_link,omitempty"`
	Coursework     []*ImportCoursework `json:"coursework,omitempty"`
}

// ImportCoursework is a synced coursework item with its video links
type ImportCoursework struct {
	GoogleCourseworkID string             `json:"google_coursework_id" binding:"required"`
	Title              string             `json:"title" binding:"required"`
	Description        string             `json:"description,omitempty"`
	WorkType           string             `json:"work_type,omitempty"`
	State              string             `json:"state,omitempty"`
	AlternateLink      string             `json:"alternate_link,omitempty"`
	VideoLinks         []*ImportVideoLink `json:"video_links,omitempty"`
}

// ImportVideoLink is one video URL found in a coursework item
type ImportVideoLink struct {
	URL         string `json:"url" binding:"required"`
	Title       string `json:"title,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	DriveFileID string `json:"drive_file_id,omitempty"`
}

// ImportCatalog handles POST /api/v1/catalog/import
func (h *CatalogHandler) ImportCatalog(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	imports := make([]*app.CourseImport, 0, len(req.Courses))
	var courseCount, linkCount int
	for _, rc := range req.Courses {
		imp := &app.CourseImport{
			Course: &domain.Course{
				GoogleCourseID: rc.GoogleCourseID,
				Name:           rc.Name,
				Section:        rc.Section,
				Description:    rc.Description,
				Room:           rc.Room,
				State:          defaultString(rc.State, "ACTIVE"),
				AlternateLink:  rc.AlternateLink,
			},
		}
		for _, rcw := range rc.Coursework {
			cwImp := &app.CourseworkImport{
				Coursework: &domain.Coursework{
					GoogleCourseworkID: rcw.GoogleCourseworkID,
					Title:              rcw.Title,
					Description:        rcw.Description,
					WorkType:           defaultString(rcw.WorkType, "MATERIAL"),
					State:              defaultString(rcw.State, "PUBLISHED"),
					AlternateLink:      rcw.AlternateLink,
				},
			}
			for _, rl := range rcw.VideoLinks {
				cwImp.VideoLinks = append(cwImp.VideoLinks, &domain.VideoLink{
					URL:         rl.URL,
					Title:       rl.Title,
					SourceType:  defaultString(rl.SourceType, "youtube"),
					DriveFileID: rl.DriveFileID,
				})
				linkCount++
			}
			imp.Coursework = append(imp.Coursework, cwImp)
		}
		imports = append(imports, imp)
		courseCount++
	}

	if err := h.catalog.ImportCourses(req.UserID, imports); err != nil {
		h.logger.Error("Catalog import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"courses_imported":     courseCount,
		"video_links_imported": linkCount,
	})
}

// ListCourses handles GET /api/v1/courses
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	userID := c.Query("user_id")

	courses, err := h.catalog.ListCourses(userID)
	if err != nil {
		h.logger.Error("Failed to list courses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, courses)
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	id := c.Param("id")

	course, err := h.catalog.GetCourse(id)
	if err != nil {
		h.logger.Error("Failed to get course", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if course == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}

	c.JSON(http.StatusOK, course)
}

// ListVideos handles GET /api/v1/courses/:id/videos
func (h *CatalogHandler) ListVideos(c *gin.Context) {
	id := c.Param("id")

	course, err := h.catalog.GetCourse(id)
	if err != nil {
		h.logger.Error("Failed to get course", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if course == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}

	links, err := h.catalog.ListVideoLinks(id)
	if err != nil {
		h.logger.Error("Failed to list videos", zap.String("course_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, links)
}

// ListAllVideos handles GET /api/v1/videos
func (h *CatalogHandler) ListAllVideos(c *gin.Context) {
	courseID := c.Query("course_id")

	links, err := h.catalog.ListVideoLinks(courseID)
	if err != nil {
		h.logger.Error("Failed to list videos", zap.String("course_id", courseID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, links)
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
