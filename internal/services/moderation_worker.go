package services

import (
	"context"
	"fmt"
	"time"

	"ridechat/internal/config"
	"ridechat/internal/metrics"
	"ridechat/internal/models"
	"ridechat/pkg/alert"
	"ridechat/pkg/logger"
	"ridechat/pkg/moderation"
	"ridechat/pkg/queue"
)

// ModerationConsumer is the consumer side of the moderation job queue.
type ModerationConsumer interface {
	Process(ctx context.Context, opts queue.ProcessOptions, handler queue.Handler) error
}

// ModerationWorker drives normalize -> classify -> apply for each job.
// Unexpected errors are returned to the queue so it retries with backoff.
type ModerationWorker struct {
	consumer    ModerationConsumer
	normalizer  TextNormalizationService
	classifier  moderation.Classifier
	messages    MessageService
	notifier    alert.Notifier
	concurrency int
	logger      *logger.Logger
}

func NewModerationWorker(
	cfg *config.ModerationConfig,
	consumer ModerationConsumer,
	normalizer TextNormalizationService,
	classifier moderation.Classifier,
	messages MessageService,
	notifier alert.Notifier,
	log *logger.Logger,
) *ModerationWorker {
	if notifier == nil {
		notifier = alert.NopNotifier{}
	}
	return &ModerationWorker{
		consumer:    consumer,
		normalizer:  normalizer,
		classifier:  classifier,
		messages:    messages,
		notifier:    notifier,
		concurrency: cfg.Concurrency,
		logger:      log.WithField("component", "moderation_worker"),
	}
}

// Start consumes jobs until ctx is cancelled.
func (w *ModerationWorker) Start(ctx context.Context) error {
	w.logger.WithField("concurrency", w.concurrency).Info("Moderation worker started")
	defer w.logger.Info("Moderation worker stopped")

	return w.consumer.Process(ctx, queue.ProcessOptions{
		Concurrency: w.concurrency,
		OnCompleted: func(*queue.Job) {
			metrics.ModerationJobsTotal.WithLabelValues("completed").Inc()
		},
		OnRetry:  w.onRetry,
		OnFailed: w.onFailed,
	}, w.HandleJob)
}

// HandleJob decodes a queued job and processes it.
func (w *ModerationWorker) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload models.ModerationJob
	if err := job.Decode(&payload); err != nil {
		return err
	}
	return w.ProcessJob(ctx, &payload)
}

func (w *ModerationWorker) ProcessJob(ctx context.Context, job *models.ModerationJob) error {
	if job.MessageID == "" {
		return fmt.Errorf("%w: moderation job without messageId", ErrInvalidInput)
	}
	log := w.logger.WithMessageID(job.MessageID).WithRideID(job.RideID)

	normalized := w.normalizer.Normalize(job.Content)
	log.WithFields(map[string]interface{}{
		"similarity":   w.normalizer.Similarity(job.Content, normalized.Normalized),
		"replacements": len(normalized.Replacements),
	}).Debug("Message normalized for moderation")

	start := time.Now()
	result := w.classifier.Classify(ctx, normalized.Normalized)
	metrics.ModerationLatency.Observe(time.Since(start).Seconds())

	flagged, err := w.messages.ApplyModerationResult(ctx, job.MessageID, result)
	if err != nil {
		return fmt.Errorf("apply moderation result: %w", err)
	}

	if !flagged {
		log.Debug("Message passed moderation")
		return nil
	}

	w.notify(ctx, &alert.Alert{
		Type:      alert.TypeMessageFlagged,
		Subject:   "Chat message flagged",
		Message:   result.FlagReason,
		RideID:    job.RideID,
		MessageID: job.MessageID,
		Details:   map[string]string{"senderId": job.SenderID, "model": result.Model},
		Timestamp: time.Now(),
	})
	return nil
}

func (w *ModerationWorker) onRetry(job *queue.Job, err error, delay time.Duration) {
	metrics.ModerationJobsTotal.WithLabelValues("retried").Inc()
	w.logger.WithError(err).WithFields(map[string]interface{}{
		"job_id":        job.ID,
		"attempts_made": job.AttemptsMade,
		"retry_in":      delay.String(),
	}).Warn("Moderation job failed, retrying")
}

// onFailed runs once a job has exhausted its attempts. The message stays
// active.
func (w *ModerationWorker) onFailed(job *queue.Job, err error) {
	metrics.ModerationJobsTotal.WithLabelValues("failed").Inc()

	var payload models.ModerationJob
	_ = job.Decode(&payload)

	w.logger.WithError(err).WithMessageID(payload.MessageID).WithRideID(payload.RideID).
		WithFields(map[string]interface{}{
			"job_id":        job.ID,
			"attempts_made": job.AttemptsMade,
		}).Error("Moderation job exhausted all attempts, message left unmoderated")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.notify(ctx, &alert.Alert{
		Type:      alert.TypeModerationFailed,
		Subject:   "Moderation job failed",
		Message:   job.FailedReason,
		RideID:    payload.RideID,
		MessageID: payload.MessageID,
		Details:   map[string]string{"jobId": job.ID},
		Timestamp: time.Now(),
	})
}

func (w *ModerationWorker) notify(ctx context.Context, a *alert.Alert) {
	if err := w.notifier.Notify(ctx, a); err != nil {
		w.logger.WithError(err).WithMessageID(a.MessageID).Warn("Failed to publish moderation alert")
	}
}
