// Package queue implements the analysis work queue on Redis. Jobs move
// from a pending list to a processing list when leased, guarded by a
// per-job lease key with a TTL. Workers renew the lease while the
// analysis runs and remove the job on completion; jobs whose lease
// expired are swept back to pending.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
)

const connectTimeout = 5 * time.Second

// Job is one queued analysis request with queue bookkeeping.
type Job struct {
	ID         string          `json:"id"`
	DeviceID   schema.DeviceID `json:"device_id"`
	TimeFrom   time.Time       `json:"time_from,omitzero"`
	TimeTo     time.Time       `json:"time_to,omitzero"`
	Daily      bool            `json:"daily,omitempty"`
	Testing    bool            `json:"testing,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// payload is the exact string stored in Redis, kept so the job can
	// be removed from the processing list by value.
	payload string
}

// Request converts the job back into an analysis request.
func (j *Job) Request() schema.AnalysisRequest {
	return schema.AnalysisRequest{
		DeviceID: j.DeviceID,
		TimeFrom: j.TimeFrom,
		TimeTo:   j.TimeTo,
		Daily:    j.Daily,
		Testing:  j.Testing,
	}
}

// RedisQueue is the Redis-backed work queue.
type RedisQueue struct {
	client *redis.Client
	name   string
	lease  time.Duration
}

// NewRedisQueue connects to Redis and returns the queue.
func NewRedisQueue(addr, name string, lease time.Duration) (*RedisQueue, error) {
	if name == "" {
		name = contract.DefaultRedisQueue
	}
	if lease <= 0 {
		lease = contract.DefaultLeaseDuration
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisQueue{client: client, name: name, lease: lease}, nil
}

func (q *RedisQueue) pendingKey() string    { return q.name }
func (q *RedisQueue) processingKey() string { return q.name + ":processing" }
func (q *RedisQueue) leaseKey(id string) string {
	return q.name + ":lease:" + id
}

// Enqueue adds an analysis request to the queue and returns the job ID.
func (q *RedisQueue) Enqueue(ctx context.Context, req schema.AnalysisRequest) (string, error) {
	job := Job{
		ID:         uuid.NewString(),
		DeviceID:   req.DeviceID,
		TimeFrom:   req.TimeFrom,
		TimeTo:     req.TimeTo,
		Daily:      req.Daily,
		Testing:    req.Testing,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		return "", fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

// Lease atomically moves the oldest pending job to the processing list
// and starts its lease. It blocks up to wait and returns ErrEmptyQueue
// when nothing arrived in time.
func (q *RedisQueue) Lease(ctx context.Context, wait time.Duration) (*Job, error) {
	payload, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, contract.ErrEmptyQueue
	}
	if err != nil {
		return nil, fmt.Errorf("leasing job: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// A malformed entry would wedge the queue head, drop it.
		_ = q.client.LRem(ctx, q.processingKey(), 1, payload).Err()
		return nil, fmt.Errorf("decoding leased job: %w", err)
	}
	job.payload = payload
	if err := q.client.Set(ctx, q.leaseKey(job.ID), "1", q.lease).Err(); err != nil {
		return nil, fmt.Errorf("starting lease for job %s: %w", job.ID, err)
	}
	return &job, nil
}

// Renew extends the lease of a running job.
func (q *RedisQueue) Renew(ctx context.Context, job *Job) error {
	ok, err := q.client.Expire(ctx, q.leaseKey(job.ID), q.lease).Result()
	if err != nil {
		return fmt.Errorf("renewing lease for job %s: %w", job.ID, err)
	}
	if !ok {
		// The lease expired and the sweeper may already have requeued
		// the job. Re-establish the lease so the worker can finish.
		return q.client.Set(ctx, q.leaseKey(job.ID), "1", q.lease).Err()
	}
	return nil
}

// Complete removes a finished job from the processing list.
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, job.payload)
	pipe.Del(ctx, q.leaseKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return nil
}

// Requeue returns a failed job to the pending list.
func (q *RedisQueue) Requeue(ctx context.Context, job *Job) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, job.payload)
	pipe.LPush(ctx, q.pendingKey(), job.payload)
	pipe.Del(ctx, q.leaseKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeueing job %s: %w", job.ID, err)
	}
	return nil
}

// SweepExpired moves jobs whose lease lapsed back to the pending list
// and returns how many were recovered.
func (q *RedisQueue) SweepExpired(ctx context.Context) (int, error) {
	payloads, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("listing processing jobs: %w", err)
	}
	recovered := 0
	for _, payload := range payloads {
		var job Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			contract.Logger.Warn().Err(err).Msg("dropping malformed job from processing list")
			_ = q.client.LRem(ctx, q.processingKey(), 1, payload).Err()
			continue
		}
		exists, err := q.client.Exists(ctx, q.leaseKey(job.ID)).Result()
		if err != nil {
			return recovered, fmt.Errorf("checking lease for job %s: %w", job.ID, err)
		}
		if exists > 0 {
			continue
		}
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processingKey(), 1, payload)
		pipe.LPush(ctx, q.pendingKey(), payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, fmt.Errorf("recovering job %s: %w", job.ID, err)
		}
		contract.Logger.Info().Str("job", job.ID).Str("device", string(job.DeviceID)).Msg("requeued job with expired lease")
		recovered++
	}
	return recovered, nil
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey()).Result()
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
