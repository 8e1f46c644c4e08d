package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mljobs/internal/apperrors"
	"mljobs/internal/artifact"
	"mljobs/internal/job"
)

// Redis is a Redis-backed job record store. Mutations use WATCH-based
// optimistic transactions: the transition callback runs against the watched
// record and the write commits only if no concurrent writer touched the key,
// retrying on conflict.
type Redis struct {
	client *redis.Client
}

// mutateRetries bounds the optimistic retry loop. Contention is per job ID,
// so a handful of retries is plenty even under duplicate-delivery races.
const mutateRetries = 16

const (
	keyJobPrefix       = "job:"
	keyModelPrefix     = "model:"
	keyPendingIndex    = "jobs:pending"
	keySubmitterPrefix = "jobs:submitter:"
)

// NewRedis creates a Redis-backed store.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, apperrors.Internal("store.ping", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client. Used by tests with miniredis.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Create persists a new record and indexes it.
func (r *Redis) Create(ctx context.Context, rec *job.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Internal("store.create", err)
	}

	ok, err := r.client.SetNX(ctx, keyJobPrefix+rec.ID, data, 0).Result()
	if err != nil {
		return apperrors.Internal("store.create", err)
	}
	if !ok {
		return apperrors.Internal("store.create", errDuplicateID(rec.ID))
	}

	score := float64(rec.CreatedAt.UnixMilli())
	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, keyPendingIndex, redis.Z{Score: score, Member: rec.ID})
	pipe.ZAdd(ctx, keySubmitterPrefix+rec.Spec.SubmittedBy, redis.Z{Score: score, Member: rec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Internal("store.create", err)
	}
	return nil
}

// Get returns the record by ID.
func (r *Redis) Get(ctx context.Context, id string) (*job.Record, error) {
	data, err := r.client.Get(ctx, keyJobPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, apperrors.Internal("store.get", err)
	}
	return unmarshalJob(data)
}

// Mutate applies fn under an optimistic WATCH transaction, retrying on
// conflicting concurrent writes.
func (r *Redis) Mutate(ctx context.Context, id string, fn job.Mutation) (*job.Record, error) {
	key := keyJobPrefix + id
	var result *job.Record

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperrors.NotFound("job", id)
		}
		if err != nil {
			return apperrors.Internal("store.mutate", err)
		}

		rec, err := unmarshalJob(data)
		if err != nil {
			return err
		}

		model, err := fn(rec)
		if err != nil {
			return err
		}

		next, err := json.Marshal(rec)
		if err != nil {
			return apperrors.Internal("store.mutate", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			if rec.Status != job.StatePending {
				pipe.ZRem(ctx, keyPendingIndex, id)
			}
			if model != nil {
				modelData, err := json.Marshal(model)
				if err != nil {
					return err
				}
				pipe.SetNX(ctx, keyModelPrefix+id, modelData, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = rec
		return nil
	}

	for range mutateRetries {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, apperrors.Internal("store.mutate", errors.New("too many conflicting writes"))
}

// GetModel returns the model record for a job.
func (r *Redis) GetModel(ctx context.Context, jobID string) (*artifact.Model, error) {
	data, err := r.client.Get(ctx, keyModelPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("model", jobID)
	}
	if err != nil {
		return nil, apperrors.Internal("store.getModel", err)
	}

	var m artifact.Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Internal("store.getModel", err)
	}
	return &m, nil
}

// ListBySubmitter returns records for a submitter, newest first.
func (r *Redis) ListBySubmitter(ctx context.Context, submitter string) ([]*job.Record, error) {
	ids, err := r.client.ZRevRange(ctx, keySubmitterPrefix+submitter, 0, -1).Result()
	if err != nil {
		return nil, apperrors.Internal("store.list", err)
	}
	return r.fetchAll(ctx, ids)
}

// ListStalePending returns pending records created before the cutoff,
// oldest first.
func (r *Redis) ListStalePending(ctx context.Context, cutoff time.Time) ([]*job.Record, error) {
	ids, err := r.client.ZRangeByScore(ctx, keyPendingIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(cutoff),
	}).Result()
	if err != nil {
		return nil, apperrors.Internal("store.listStalePending", err)
	}
	return r.fetchAll(ctx, ids)
}

func (r *Redis) fetchAll(ctx context.Context, ids []string) ([]*job.Record, error) {
	out := make([]*job.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue // index entry outlived the record
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func unmarshalJob(data []byte) (*job.Record, error) {
	var rec job.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Internal("store.unmarshal", err)
	}
	return &rec, nil
}

// formatScore renders an exclusive upper bound for ZRANGEBYSCORE.
func formatScore(t time.Time) string {
	return "(" + strconv.FormatInt(t.UnixMilli(), 10)
}

var _ job.Store = (*Redis)(nil)
