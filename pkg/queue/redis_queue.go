package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ridechat/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteDelayedLua moves due jobs from the delayed zset onto the wait list.
const promoteDelayedLua = `
local jobs = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, job in ipairs(jobs) do
  redis.call('ZREM', KEYS[1], job)
  redis.call('LPUSH', KEYS[2], job)
end
return #jobs
`

// Handler processes one job. A returned error (or panic) counts as a failed
// attempt.
type Handler func(ctx context.Context, job *Job) error

// ProcessOptions configures a consumer. Hooks are optional.
type ProcessOptions struct {
	Concurrency int
	OnCompleted func(job *Job)
	OnRetry     func(job *Job, err error, delay time.Duration)
	OnFailed    func(job *Job, err error)
}

type RedisQueue struct {
	client        *redis.Client
	name          string
	defaults      JobOptions
	logger        *logger.Logger
	pollInterval  time.Duration
	blockTimeout  time.Duration
	promoteScript *redis.Script
}

func NewRedisQueue(client *redis.Client, name string, defaults JobOptions, log *logger.Logger) *RedisQueue {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &RedisQueue{
		client:        client,
		name:          name,
		defaults:      defaults,
		logger:        log.WithField("queue", name),
		pollInterval:  500 * time.Millisecond,
		blockTimeout:  time.Second,
		promoteScript: redis.NewScript(promoteDelayedLua),
	}
}

func (q *RedisQueue) key(suffix string) string {
	return "queue:" + q.name + ":" + suffix
}

// Add enqueues data as a new job. Nil opts uses the queue defaults.
func (q *RedisQueue) Add(ctx context.Context, data interface{}, opts *JobOptions) (*Job, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	jobOpts := q.defaults
	if opts != nil {
		jobOpts = *opts
	}

	job := &Job{
		ID:        uuid.NewString(),
		Data:      payload,
		Opts:      jobOpts,
		CreatedAt: time.Now(),
	}

	raw, err := encodeJob(job)
	if err != nil {
		return nil, err
	}

	if err := q.client.LPush(ctx, q.key("wait"), raw).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// Process consumes jobs until ctx is cancelled. Jobs left on the active list
// by a previous process are re-queued first.
func (q *RedisQueue) Process(ctx context.Context, opts ProcessOptions, handler Handler) error {
	if n, err := q.RecoverStalled(ctx); err != nil {
		return fmt.Errorf("recover stalled jobs: %w", err)
	} else if n > 0 {
		q.logger.Warnf("Re-queued %d stalled jobs", n)
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.promoteLoop(ctx)
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.workLoop(ctx, opts, handler)
		}()
	}

	wg.Wait()
	return nil
}

func (q *RedisQueue) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
				q.logger.WithError(err).Error("Failed to promote delayed jobs")
			}
		}
	}
}

// PromoteDelayed moves every delayed job whose backoff has elapsed to wait.
func (q *RedisQueue) PromoteDelayed(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	n, err := q.promoteScript.Run(ctx, q.client, []string{q.key("delayed"), q.key("wait")}, now, 100).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (q *RedisQueue) workLoop(ctx context.Context, opts ProcessOptions, handler Handler) {
	for ctx.Err() == nil {
		raw, err := q.client.BLMove(ctx, q.key("wait"), q.key("active"), "RIGHT", "LEFT", q.blockTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.logger.WithError(err).Error("Failed to fetch job")
			select {
			case <-ctx.Done():
			case <-time.After(q.pollInterval):
			}
			continue
		}

		q.handle(ctx, raw, opts, handler)
	}
}

func (q *RedisQueue) handle(ctx context.Context, raw string, opts ProcessOptions, handler Handler) {
	job, err := decodeJob(raw)
	if err != nil {
		q.logger.WithError(err).Error("Discarding undecodable job")
		q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.key("active"), 1, raw)
			pipe.LPush(ctx, q.key("failed"), raw)
			return nil
		})
		return
	}

	job.AttemptsMade++
	runErr := q.run(ctx, job, handler)

	if runErr == nil {
		q.complete(ctx, raw, job)
		if opts.OnCompleted != nil {
			opts.OnCompleted(job)
		}
		return
	}

	job.FailedReason = runErr.Error()

	if job.HasAttemptsLeft() {
		delay := BackoffDelay(job.Opts.Backoff, job.AttemptsMade)
		if err := q.retry(ctx, raw, job, delay); err != nil {
			q.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to schedule job retry")
		}
		if opts.OnRetry != nil {
			opts.OnRetry(job, runErr, delay)
		}
		return
	}

	if err := q.fail(ctx, raw, job); err != nil {
		q.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to move job to failed list")
	}
	if opts.OnFailed != nil {
		opts.OnFailed(job, runErr)
	}
}

func (q *RedisQueue) run(ctx context.Context, job *Job, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return handler(ctx, job)
}

func (q *RedisQueue) complete(ctx context.Context, raw string, job *Job) {
	now := time.Now()
	job.FinishedAt = &now

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, raw)
		if !job.Opts.RemoveOnComplete {
			if encoded, err := encodeJob(job); err == nil {
				pipe.LPush(ctx, q.key("completed"), encoded)
			}
		}
		return nil
	})
	if err != nil {
		q.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to mark job completed")
	}
}

func (q *RedisQueue) retry(ctx context.Context, raw string, job *Job, delay time.Duration) error {
	encoded, err := encodeJob(job)
	if err != nil {
		return err
	}

	readyAt := float64(time.Now().Add(delay).UnixMilli())
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, raw)
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: readyAt, Member: encoded})
		return nil
	})
	return err
}

func (q *RedisQueue) fail(ctx context.Context, raw string, job *Job) error {
	now := time.Now()
	job.FinishedAt = &now

	encoded, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, raw)
		if !job.Opts.RemoveOnFail {
			pipe.LPush(ctx, q.key("failed"), encoded)
		}
		return nil
	})
	return err
}

// RecoverStalled moves every job on the active list back onto wait.
func (q *RedisQueue) RecoverStalled(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.key("active"), q.key("wait"), "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// Failed returns up to limit jobs that exhausted their attempts, newest first.
func (q *RedisQueue) Failed(ctx context.Context, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}

	raws, err := q.client.LRange(ctx, q.key("failed"), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Counts reports the size of each job state.
func (q *RedisQueue) Counts(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	wait := pipe.LLen(ctx, q.key("wait"))
	active := pipe.LLen(ctx, q.key("active"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	completed := pipe.LLen(ctx, q.key("completed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	return map[string]int64{
		"wait":      wait.Val(),
		"active":    active.Val(),
		"delayed":   delayed.Val(),
		"failed":    failed.Val(),
		"completed": completed.Val(),
	}, nil
}
