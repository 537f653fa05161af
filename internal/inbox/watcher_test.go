package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/internal/ingest"
	"khabar/internal/news"
)

type fakeRefresher struct {
	mu   sync.Mutex
	got  []news.Article
	err  error
	runs chan struct{}
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{runs: make(chan struct{}, 10)}
}

func (f *fakeRefresher) Refresh(ctx context.Context, src ingest.ArticleSource) (ingest.Result, error) {
	articles, _ := src.Articles(ctx, nil)
	f.mu.Lock()
	f.got = append(f.got, articles...)
	f.mu.Unlock()
	f.runs <- struct{}{}
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return ingest.Result{Articles: len(articles)}, nil
}

const twoArticles = `{"title":"A","url":"https://example.com/a","date":"2024-11-30","source":"Ex","text":"alpha"}

not json
{"title":"B","url":"https://example.com/b","date":"2024-11-29","source":"Ex","text":"beta"}
`

func TestReadArticles(t *testing.T) {
	articles, skipped, err := ReadArticles(strings.NewReader(twoArticles))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, articles, 2)
	assert.Equal(t, "https://example.com/b", articles[1].URL)
}

func TestProcessFile_MovesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProcessedDir), 0o750))
	path := filepath.Join(dir, "batch.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(twoArticles), 0o600))

	r := newFakeRefresher()
	w := NewWatcher(dir, r)

	res, err := w.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Articles)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "batch.jsonl"))
}

func TestProcessFile_KeepsFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProcessedDir), 0o750))
	path := filepath.Join(dir, "batch.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(twoArticles), 0o600))

	r := newFakeRefresher()
	r.err = errors.New("index flush failed")
	w := NewWatcher(dir, r)

	_, err := w.ProcessFile(context.Background(), path)
	assert.Error(t, err)
	assert.FileExists(t, path)
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.jsonl"), []byte(twoArticles), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))

	r := newFakeRefresher()
	w := NewWatcher(dir, r)
	w.settle = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitRun := func() {
		t.Helper()
		select {
		case <-r.runs:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for inbox ingestion")
		}
	}

	waitRun()
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ProcessedDir, "existing.jsonl"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	line := `{"title":"C","url":"https://example.com/c","date":"2024-11-28","source":"Ex","text":"gamma"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.jsonl"), []byte(line), 0o600))
	waitRun()

	cancel()
	require.NoError(t, <-done)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.got, 3)
	assert.FileExists(t, filepath.Join(dir, "ignored.txt"))
}
