//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/api"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/app"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/infrastructure"
)

// stubFetcher reports instant success without touching the network
type stubFetcher struct{}

func (f *stubFetcher) Fetch(ctx context.Context, sourceURL, destDir string, onProgress domain.ProgressFunc) (*domain.FetchResult, error) {
	if onProgress != nil {
		onProgress(1024, 1024)
	}
	return &domain.FetchResult{OutputPath: filepath.Join(destDir, "video.mp4"), FileSize: 1024}, nil
}

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo, err := infrastructure.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	log := zap.NewNop()
	config := domain.DefaultConfig()

	worker := app.NewDownloadWorker(repo, &stubFetcher{}, &config.Worker, &config.Download, log)
	jobSvc := app.NewJobService(repo, repo, log)
	catalogSvc := app.NewCatalogService(repo, log)

	router := api.SetupRouter(jobSvc, catalogSvc, worker, log)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server
}

// importFixture pushes one course with one video link through the
// import endpoint and returns the created video link ID.
func importFixture(t *testing.T, server *httptest.Server) (courseID, videoLinkID string) {
	t.Helper()

	payload := map[string]interface{}{
		"user_id": "user-1",
		"courses": []map[string]interface{}{
			{
				"google_course_id": "gc-1",
				"name":             "Math 101",
				"coursework": []map[string]interface{}{
					{
						"google_coursework_id": "gw-1",
						"title":                "Lecture 1",
						"video_links": []map[string]interface{}{
							{
								"url":   "https://youtube.com/watch?v=abc",
								"title": "Lecture 1 recording",
							},
						},
					},
				},
			},
		},
	}
	data, _ := json.Marshal(payload)

	resp, err := http.Post(server.URL+"/api/v1/catalog/import", "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/v1/courses?user_id=user-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var courses []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&courses))
	require.Len(t, courses, 1)
	courseID = courses[0]["id"].(string)

	resp, err = http.Get(server.URL + "/api/v1/courses/" + courseID + "/videos")
	require.NoError(t, err)
	defer resp.Body.Close()

	var links []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&links))
	require.Len(t, links, 1)
	videoLinkID = links[0]["id"].(string)

	return courseID, videoLinkID
}

func enqueueJob(t *testing.T, server *httptest.Server, courseID, videoLinkID string) map[string]interface{} {
	t.Helper()

	payload := map[string]string{
		"user_id":       "user-1",
		"course_id":     courseID,
		"video_link_id": videoLinkID,
	}
	data, _ := json.Marshal(payload)

	resp, err := http.Post(server.URL+"/api/v1/jobs", "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var job map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	return job
}

func TestAPI_ImportAndEnqueue(t *testing.T) {
	server := setupTestServer(t)
	courseID, videoLinkID := importFixture(t, server)

	job := enqueueJob(t, server, courseID, videoLinkID)
	assert.NotEmpty(t, job["id"])
	assert.Equal(t, "pending", job["status"])
	assert.Equal(t, videoLinkID, job["video_link_id"])
}

func TestAPI_EnqueueUnknownLink(t *testing.T) {
	server := setupTestServer(t)

	payload := map[string]string{
		"user_id":       "user-1",
		"course_id":     "course-1",
		"video_link_id": "no-such-link",
	}
	data, _ := json.Marshal(payload)

	resp, err := http.Post(server.URL+"/api/v1/jobs", "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DuplicateEnqueueReturnsSameJob(t *testing.T) {
	server := setupTestServer(t)
	courseID, videoLinkID := importFixture(t, server)

	first := enqueueJob(t, server, courseID, videoLinkID)
	second := enqueueJob(t, server, courseID, videoLinkID)
	assert.Equal(t, first["id"], second["id"])
}

func TestAPI_ListAndFilterJobs(t *testing.T) {
	server := setupTestServer(t)
	courseID, videoLinkID := importFixture(t, server)
	enqueueJob(t, server, courseID, videoLinkID)

	resp, err := http.Get(server.URL + "/api/v1/jobs?status=pending")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Len(t, jobs, 1)

	resp, err = http.Get(server.URL + "/api/v1/jobs?status=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CancelJob(t *testing.T) {
	server := setupTestServer(t)
	courseID, videoLinkID := importFixture(t, server)
	job := enqueueJob(t, server, courseID, videoLinkID)
	jobID := job["id"].(string)

	resp, err := http.Post(server.URL+"/api/v1/jobs/"+jobID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cancelled map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cancelled))
	assert.Equal(t, "cancelled", cancelled["status"])

	// cancelling a terminal job is a conflict
	resp, err = http.Post(server.URL+"/api/v1/jobs/"+jobID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Stats(t *testing.T) {
	server := setupTestServer(t)
	courseID, videoLinkID := importFixture(t, server)
	enqueueJob(t, server, courseID, videoLinkID)

	resp, err := http.Get(server.URL + "/api/v1/jobs/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, float64(1), stats["total"])
	assert.Equal(t, float64(1), stats["pending"])
}

func TestAPI_UnknownCourseReturns404(t *testing.T) {
	server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/courses/no-such-course")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/v1/courses/no-such-course/videos")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ReimportKeepsVideoLinkID(t *testing.T) {
	server := setupTestServer(t)
	_, firstLinkID := importFixture(t, server)
	_, secondLinkID := importFixture(t, server)

	assert.Equal(t, firstLinkID, secondLinkID)
}

func TestAPI_Health(t *testing.T) {
	server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// worker never started in this harness
	resp, err = http.Get(server.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
