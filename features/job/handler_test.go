package job_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"khabar/features/job"
	"khabar/internal/config"
)

// MockRepo implements job.Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *MockRepo) List(ctx context.Context, f job.Filter) ([]job.Job, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}
func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}
func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func TestHandler_List(t *testing.T) {
	mockRepo := new(MockRepo)
	svc := job.NewService(mockRepo, nil, slog.Default())
	handler := job.NewHandler(svc)

	mockRepo.On("List", mock.Anything, job.Filter{Host: "www.bbc.com", Limit: 20}).Return([]job.Job{{ID: "1"}}, nil)

	req := httptest.NewRequest("GET", "/jobs/failed?host=www.bbc.com&limit=20", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"count":1`)
	mockRepo.AssertExpectations(t)
}

func TestHandler_List_BadLimit(t *testing.T) {
	handler := job.NewHandler(job.NewService(new(MockRepo), nil, slog.Default()))

	req := httptest.NewRequest("GET", "/jobs/failed?limit=-1", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestHandler_Retry_NotFound(t *testing.T) {
	mockRepo := new(MockRepo)
	mockPub := new(MockPublisher)
	svc := job.NewService(mockRepo, mockPub, slog.Default())
	handler := job.NewHandler(svc)

	mockRepo.On("Get", mock.Anything, "99").Return(nil, sql.ErrNoRows)

	req := httptest.NewRequest("POST", "/jobs/99/retry", nil)
	req.SetPathValue("id", "99")
	w := httptest.NewRecorder()

	handler.Retry(w, req)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestHandler_Retry(t *testing.T) {
	mockRepo := new(MockRepo)
	mockPub := new(MockPublisher)
	svc := job.NewService(mockRepo, mockPub, slog.Default())
	handler := job.NewHandler(svc)

	jobID := "job-123"
	j := &job.Job{
		ID:      jobID,
		URL:     "https://example.com/news/a",
		Payload: []byte(`{"url": "https://example.com/news/a"}`),
	}

	mockRepo.On("Get", mock.Anything, jobID).Return(j, nil)
	mockPub.On("Publish", config.TopicFetch, mock.Anything).Return(nil)
	mockRepo.On("Delete", mock.Anything, jobID).Return(nil)

	req := httptest.NewRequest("POST", "/jobs/"+jobID+"/retry", nil)
	req.SetPathValue("id", jobID)
	w := httptest.NewRecorder()

	handler.Retry(w, req)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	mockRepo.AssertExpectations(t)
	mockPub.AssertExpectations(t)
}

func TestHandler_List_Error(t *testing.T) {
	mockRepo := new(MockRepo)
	svc := job.NewService(mockRepo, nil, slog.Default())
	handler := job.NewHandler(svc)

	mockRepo.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	req := httptest.NewRequest("GET", "/jobs/failed", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestHandler_Retry_NoPublisher(t *testing.T) {
	mockRepo := new(MockRepo)
	handler := job.NewHandler(job.NewService(mockRepo, nil, slog.Default()))

	mockRepo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1", Payload: []byte(`{}`)}, nil)

	req := httptest.NewRequest("POST", "/jobs/1/retry", nil)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()

	handler.Retry(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), "PUBLISH_ERROR")
}

func TestHandler_RetryAll(t *testing.T) {
	mockRepo := new(MockRepo)
	mockPub := new(MockPublisher)
	handler := job.NewHandler(job.NewService(mockRepo, mockPub, slog.Default()))

	jobs := []job.Job{
		{ID: "a", Payload: []byte(`{"url":"https://example.com/a"}`)},
		{ID: "b", Payload: []byte(`{"url":"https://example.com/b"}`)},
	}
	mockRepo.On("List", mock.Anything, job.Filter{Limit: job.DefaultListLimit}).Return(jobs, nil)
	mockPub.On("Publish", config.TopicFetch, mock.Anything).Return(nil).Once()
	mockPub.On("Publish", config.TopicFetch, mock.Anything).Return(errors.New("nsqd down")).Once()
	mockRepo.On("Delete", mock.Anything, "a").Return(nil)

	req := httptest.NewRequest("POST", "/jobs/retry", nil)
	w := httptest.NewRecorder()

	handler.RetryAll(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"retried":1`)
	mockRepo.AssertNotCalled(t, "Delete", mock.Anything, "b")
}

func TestHandler_Dismiss(t *testing.T) {
	mockRepo := new(MockRepo)
	handler := job.NewHandler(job.NewService(mockRepo, nil, slog.Default()))

	mockRepo.On("Delete", mock.Anything, "1").Return(nil)
	mockRepo.On("Delete", mock.Anything, "2").Return(sql.ErrNoRows)

	req := httptest.NewRequest("DELETE", "/jobs/1", nil)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	handler.Dismiss(w, req)
	assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)

	req = httptest.NewRequest("DELETE", "/jobs/2", nil)
	req.SetPathValue("id", "2")
	w = httptest.NewRecorder()
	handler.Dismiss(w, req)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}
