// Package inbox ingests JSON-lines article files dropped into a directory.
package inbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"khabar/internal/ingest"
	"khabar/internal/news"
)

const (
	Extension    = ".jsonl"
	ProcessedDir = "processed"

	maxLineBytes = 16 << 20
)

type Refresher interface {
	Refresh(ctx context.Context, src ingest.ArticleSource) (ingest.Result, error)
}

// Watcher ingests every *.jsonl file in dir, then keeps watching for new
// ones. Ingested files are moved to dir/processed.
type Watcher struct {
	dir       string
	refresher Refresher
	settle    time.Duration
}

func NewWatcher(dir string, r Refresher) *Watcher {
	return &Watcher{dir: dir, refresher: r, settle: time.Second}
}

// Run blocks until ctx is done. Files are ingested once no write event has
// been seen for them for the settle period.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, ProcessedDir), 0o750); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(w.dir, "*"+Extension))
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.process(ctx, path)
	}

	slog.InfoContext(ctx, "inbox watcher started", "dir", w.dir)
	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != Extension {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "inbox watcher error", "error", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.process(ctx, path)
			}
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	res, err := w.ProcessFile(ctx, path)
	if err != nil {
		slog.ErrorContext(ctx, "inbox file failed", "file", path, "error", err)
		return
	}
	slog.InfoContext(ctx, "inbox file ingested", "file", path, "articles", res.Articles, "chunks", res.Chunks, "rows", res.Rows)
}

// ProcessFile ingests one file and moves it to the processed directory.
// A file is only moved once its articles are persisted.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (ingest.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.Result{}, err
	}
	articles, skipped, err := ReadArticles(f)
	f.Close()
	if err != nil {
		return ingest.Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "skipped malformed inbox lines", "file", path, "lines", skipped)
	}

	res, err := w.refresher.Refresh(ctx, ingest.StaticSource(articles))
	if err != nil {
		return res, err
	}
	return res, moveProcessed(path)
}

// ReadArticles decodes one article per line. Blank lines are ignored and
// malformed ones are counted in skipped.
func ReadArticles(r io.Reader) (articles []news.Article, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var a news.Article
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			skipped++
			continue
		}
		articles = append(articles, a)
	}
	return articles, skipped, sc.Err()
}

func moveProcessed(path string) error {
	dest := filepath.Join(filepath.Dir(path), ProcessedDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = fmt.Sprintf("%s.%d%s", strings.TrimSuffix(dest, ext), time.Now().UnixNano(), ext)
	}
	return os.Rename(path, dest)
}
