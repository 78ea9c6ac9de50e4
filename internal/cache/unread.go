// Package cache holds Redis-backed read caches.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnreadCounter caches per-recipient unread notification counts.
// A miss is reported with ok=false and no error.
//
// Fills are guarded by a generation that every Invalidate advances: a count
// read from the database after Generation returned gen may be stored with
// Fill(gen), and Fill refuses it if an invalidation happened in between.
type UnreadCounter interface {
	Get(ctx context.Context, recipientID string) (count int, ok bool, err error)
	Generation(ctx context.Context, recipientID string) (int64, error)
	Fill(ctx context.Context, recipientID string, count int, gen int64) (bool, error)
	Invalidate(ctx context.Context, recipientID string) error
}

const generationTTL = 24 * time.Hour

type redisUnreadCounter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisUnreadCounter returns a counter backed by client, or nil when
// client is nil so callers fall through to the database.
func NewRedisUnreadCounter(client *redis.Client, ttl time.Duration) UnreadCounter {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &redisUnreadCounter{client: client, ttl: ttl}
}

func unreadKey(recipientID string) string {
	return "notifications:unread:" + recipientID
}

func generationKey(recipientID string) string {
	return "notifications:unread-gen:" + recipientID
}

func (c *redisUnreadCounter) Get(ctx context.Context, recipientID string) (int, bool, error) {
	count, err := c.client.Get(ctx, unreadKey(recipientID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (c *redisUnreadCounter) Generation(ctx context.Context, recipientID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(recipientID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *redisUnreadCounter) Fill(ctx context.Context, recipientID string, count int, gen int64) (bool, error) {
	stored := false
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey(recipientID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, unreadKey(recipientID), count, c.ttl)
			return nil
		})
		stored = err == nil
		return err
	}, generationKey(recipientID))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

func (c *redisUnreadCounter) Invalidate(ctx context.Context, recipientID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(recipientID))
		pipe.Expire(ctx, generationKey(recipientID), generationTTL)
		pipe.Del(ctx, unreadKey(recipientID))
		return nil
	})
	return err
}
