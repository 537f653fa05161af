package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"khabar/internal/config"
)

var (
	ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")
	ErrNoPublisher    = errors.New("no publisher configured")
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: 5 * time.Second}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Job, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Record stores a failed fetch. Storage errors are logged, not returned,
// so a failing ledger never fails the caller's batch.
func (s *Service) Record(ctx context.Context, j *Job) {
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.ErrorContext(ctx, "failed to save failed job", "url", j.URL, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "saved failed job for retry", "job_id", j.ID, "url", j.URL)
}

// Retry republishes the job's payload as a fetch task and removes the job.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.retry(ctx, j)
}

// RetryAll retries every job matching f in listing order.
// It stops at the first job that cannot be republished.
func (s *Service) RetryAll(ctx context.Context, f Filter) (int, error) {
	jobs, err := s.repo.List(ctx, f)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		if err := s.retry(ctx, &jobs[i]); err != nil {
			return i, fmt.Errorf("retry job %s: %w", jobs[i].ID, err)
		}
	}
	return len(jobs), nil
}

// Dismiss drops a job without retrying it.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "job dismissed", "job_id", id)
	return nil
}

func (s *Service) retry(ctx context.Context, j *Job) error {
	if s.pub == nil {
		return ErrNoPublisher
	}
	if err := s.publish(ctx, j.Payload); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "job republished", "job_id", j.ID, "url", j.URL, "topic", config.TopicFetch)
	return s.repo.Delete(ctx, j.ID)
}

// publish bounds a producer call that can block while nsqd is unreachable.
func (s *Service) publish(ctx context.Context, body []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicFetch, body)
	}()

	timer := time.NewTimer(s.publishTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
