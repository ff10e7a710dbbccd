package services

import (
	"context"
	"sync"
	"time"

	"ridechat/internal/config"
	"ridechat/internal/metrics"
	"ridechat/internal/models"
	"ridechat/pkg/logger"
	"ridechat/pkg/queue"

	"github.com/cenkalti/backoff/v4"
)

// ModerationQueue is the producer side of the moderation job queue.
type ModerationQueue interface {
	Add(ctx context.Context, data interface{}, opts *queue.JobOptions) (*queue.Job, error)
}

// ModerationSubmitter hands a job to the moderation pipeline without
// blocking the caller.
type ModerationSubmitter interface {
	Submit(job *models.ModerationJob)
}

type ModerationService interface {
	ModerationSubmitter
	// Enqueue adds job to the queue, retrying briefly on failure.
	Enqueue(ctx context.Context, job *models.ModerationJob) error
	// Wait stops accepting submissions and blocks until every accepted job
	// has been enqueued or dropped. Later Submit calls drop their job.
	Wait()
}

type moderationService struct {
	queue    ModerationQueue
	jobOpts  queue.JobOptions
	timeout  time.Duration
	retries  uint64
	logger   *logger.Logger
	inflight sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewModerationService(q ModerationQueue, cfg *config.ModerationConfig, log *logger.Logger) ModerationService {
	return &moderationService{
		queue:   q,
		jobOpts: ModerationJobOptions(cfg),
		timeout: cfg.EnqueueTimeout,
		retries: 2,
		logger:  log.WithField("service", "moderation"),
	}
}

// ModerationJobOptions is the retry policy every moderation job carries.
func ModerationJobOptions(cfg *config.ModerationConfig) queue.JobOptions {
	return queue.JobOptions{
		Attempts: cfg.Attempts,
		Backoff: queue.BackoffOptions{
			Type:  queue.BackoffExponential,
			Delay: cfg.BackoffDelay,
		},
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	}
}

func (s *moderationService) Submit(job *models.ModerationJob) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.ModerationJobsTotal.WithLabelValues("dropped").Inc()
		s.logger.WithMessageID(job.MessageID).WithRideID(job.RideID).
			Warn("Moderation is shutting down, message will not be screened")
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()

		timeout := s.timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.Enqueue(ctx, job); err != nil {
			metrics.ModerationJobsTotal.WithLabelValues("dropped").Inc()
			s.logger.WithError(err).WithMessageID(job.MessageID).WithRideID(job.RideID).
				Error("Failed to enqueue message for moderation, message will not be screened")
		}
	}()
}

func (s *moderationService) Enqueue(ctx context.Context, job *models.ModerationJob) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		_, err := s.queue.Add(ctx, job, &s.jobOpts)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, s.retries), ctx))
	if err != nil {
		return err
	}

	metrics.ModerationJobsTotal.WithLabelValues("enqueued").Inc()
	s.logger.WithMessageID(job.MessageID).Debug("Message enqueued for moderation")
	return nil
}

func (s *moderationService) Wait() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
}
