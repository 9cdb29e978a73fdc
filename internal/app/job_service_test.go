package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

// mockCatalogRepo implements domain.CatalogRepository for testing
type mockCatalogRepo struct {
	mu         sync.Mutex
	courses    map[string]*domain.Course
	coursework map[string]*domain.Coursework
	links      map[string]*domain.VideoLink
}

func newMockCatalogRepo() *mockCatalogRepo {
	return &mockCatalogRepo{
		courses:    make(map[string]*domain.Course),
		coursework: make(map[string]*domain.Coursework),
		links:      make(map[string]*domain.VideoLink),
	}
}

func (m *mockCatalogRepo) UpsertUser(user *domain.User) error { return nil }

func (m *mockCatalogRepo) UpsertCourses(courses []*domain.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	return nil
}

func (m *mockCatalogRepo) UpsertCoursework(items []*domain.Coursework) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cw := range items {
		m.coursework[cw.ID] = cw
	}
	return nil
}

func (m *mockCatalogRepo) UpsertVideoLinks(links []*domain.VideoLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range links {
		m.links[l.ID] = l
	}
	return nil
}

func (m *mockCatalogRepo) FindCourse(id string) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.courses[id], nil
}

func (m *mockCatalogRepo) FindCourseByGoogleID(googleID string) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.GoogleCourseID == googleID {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockCatalogRepo) FindCourseworkByGoogleID(googleID string) (*domain.Coursework, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cw := range m.coursework {
		if cw.GoogleCourseworkID == googleID {
			return cw, nil
		}
	}
	return nil, nil
}

func (m *mockCatalogRepo) ListCourses(userID string) ([]*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Course
	for _, c := range m.courses {
		if userID == "" || c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCatalogRepo) FindVideoLink(id string) (*domain.VideoLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[id], nil
}

func (m *mockCatalogRepo) ListVideoLinks(courseID string) ([]*domain.VideoLink, error) {
	return nil, nil
}

func newTestJobService(t *testing.T) (*JobService, *mockJobRepo, *mockCatalogRepo) {
	t.Helper()
	jobs := newMockJobRepo()
	catalog := newMockCatalogRepo()
	catalog.links["link-1"] = &domain.VideoLink{
		ID:           "link-1",
		CourseworkID: "cw-1",
		URL:          "https://youtu.be/abc",
		SourceType:   "youtube",
	}
	return NewJobService(jobs, catalog, zap.NewNop()), jobs, catalog
}

func TestEnqueue_CreatesPendingJob(t *testing.T) {
	svc, jobs, _ := newTestJobService(t)

	job, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.StatusPending, job.Status)

	stored, err := jobs.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "link-1", stored.VideoLinkID)
}

func TestEnqueue_UnknownVideoLink(t *testing.T) {
	svc, _, _ := newTestJobService(t)

	_, err := svc.Enqueue("user-1", "course-1", "no-such-link")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnqueue_ReturnsExistingActiveJob(t *testing.T) {
	svc, _, _ := newTestJobService(t)

	first, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)

	second, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "an active job must not be duplicated")
}

func TestEnqueue_AllowsNewJobAfterFailure(t *testing.T) {
	svc, jobs, _ := newTestJobService(t)

	first, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)

	_, err = jobs.ClaimJob(first.ID, time.Now())
	require.NoError(t, err)
	_, err = jobs.FailJob(first.ID, "boom")
	require.NoError(t, err)

	second, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCancel_PendingJob(t *testing.T) {
	svc, _, _ := newTestJobService(t)

	job, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)
}

func TestCancel_TerminalJobIsRejected(t *testing.T) {
	svc, jobs, _ := newTestJobService(t)

	job, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)

	_, err = jobs.ClaimJob(job.ID, time.Now())
	require.NoError(t, err)
	_, err = jobs.CompleteJob(job.ID, "/out/v.mp4", 10)
	require.NoError(t, err)

	_, err = svc.Cancel(job.ID)
	assert.ErrorIs(t, err, ErrCannotCancel)

	got, err := jobs.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestRestart_FailedJob(t *testing.T) {
	svc, jobs, _ := newTestJobService(t)

	job, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)

	_, err = jobs.ClaimJob(job.ID, time.Now())
	require.NoError(t, err)
	_, err = jobs.FailJob(job.ID, "boom")
	require.NoError(t, err)

	restarted, err := svc.Restart(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, restarted.Status)
	assert.Equal(t, 0, restarted.RetryCount)
	assert.Empty(t, restarted.ErrorMessage)
	assert.Nil(t, restarted.CompletedAt)
}

func TestRestart_NonFailedJobIsRejected(t *testing.T) {
	svc, _, _ := newTestJobService(t)

	job, err := svc.Enqueue("user-1", "course-1", "link-1")
	require.NoError(t, err)

	_, err = svc.Restart(job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only failed jobs")
}
