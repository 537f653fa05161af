package app_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/internal/app"
	"khabar/internal/config"
	"khabar/internal/middleware"
	"khabar/internal/vector"
)

func newTestApp(t *testing.T) (*app.App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dir := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	idx, err := vector.OpenFile(context.Background(), filepath.Join(dir, "index"), vector.Options{Flavor: vector.FlavorFlat}, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		TopK:            5,
		MaxAgeDays:      1825,
		MinSimilarity:   0.45,
		SemWeight:       0.7,
		FreshWeight:     0.3,
		DecayRate:       0.02,
		ChunkSize:       500,
		ChunkOverlap:    50,
		EmbedBatchSize:  64,
		ContextChars:    1200,
		RerankProvider:  "none",
		FeedCatalogPath: filepath.Join(dir, "missing.yaml"),
		QueryLogPath:    filepath.Join(dir, "logs", "query.log"),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settings")).
		WithArgs(5, 1825, 0.45, 0.7, 0.3, 0.02).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a, err := app.New(context.Background(), cfg, &app.Dependencies{DB: db, Index: idx}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = a.Close()
	})
	return a, mock
}

func TestNew_SeedsSettingsAndRoutes(t *testing.T) {
	a, mock := newTestApp(t)
	assert.NoError(t, mock.ExpectationsWereMet())

	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRoutes_CORSAndCorrelation(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest("OPTIONS", "/feeds", nil)
	req.Header.Set(middleware.HeaderCorrelationID, "corr-42")
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "corr-42", w.Header().Get(middleware.HeaderCorrelationID))
}

func TestRoutes_SearchRequiresQuery(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/search", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
