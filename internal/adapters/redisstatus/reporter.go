// Package redisstatus mirrors progress events into a Redis hash per job so
// other services can read job state without going through the backend.
package redisstatus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/core/domain"
)

const (
	keyPrefix = "ytdownloader:job:"
	keyTTL    = 24 * time.Hour
	opTimeout = 3 * time.Second
)

// JobKey returns the hash key holding a job's latest status.
func JobKey(jobID string) string {
	return keyPrefix + jobID
}

// Reporter implements ports.Reporter on top of a Redis client. Errors are
// logged and swallowed.
type Reporter struct {
	client *redis.Client
	jobID  string
	logger log.FieldLogger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects lazily to Redis; no round trip happens until the first event.
func New(opts Options, jobID string, logger log.FieldLogger) *Reporter {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		MaxRetries:   -1,
	})
	return &Reporter{client: client, jobID: jobID, logger: logger}
}

// Report writes the event fields to the job hash and refreshes its TTL.
func (r *Reporter) Report(ctx context.Context, message string, progress int, finalFile *domain.VideoRecord) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	fields := eventFields(message, progress, finalFile, time.Now())

	key := JobKey(r.jobID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warnf("Could not mirror progress to redis: %v", err)
	}
}

// eventFields builds the hash fields for one event. progress is clamped to
// 0..100 like the HTTP reporter does.
func eventFields(message string, progress int, finalFile *domain.VideoRecord, now time.Time) map[string]interface{} {
	fields := map[string]interface{}{
		"message":    message,
		"progress":   min(max(progress, 0), 100),
		"updated_at": now.UTC().Format(time.RFC3339),
	}
	if finalFile != nil {
		if data, err := json.Marshal(finalFile); err == nil {
			fields["final_file"] = string(data)
		}
	}
	return fields
}

// Close releases the connection pool.
func (r *Reporter) Close() error {
	return r.client.Close()
}
