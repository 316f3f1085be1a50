// Package digest holds deferred notifications per user until a scheduled
// flush combines them into one DIGEST payload.
package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
)

// ErrUndecodable marks entries Drain could not decode. They are moved to the
// queue's dead-letter list instead of being deleted.
var ErrUndecodable = errors.New("undecodable digest items")

// Queue stores deferred items in enqueue order per user.
type Queue interface {
	Enqueue(ctx context.Context, userID id.UserID, item models.DigestItem) error
	// Drain removes and returns every pending item for the user. Entries it
	// cannot read are reported with ErrUndecodable next to the readable ones.
	Drain(ctx context.Context, userID id.UserID) ([]models.DigestItem, error)
	// Requeue puts items back ahead of anything enqueued since Drain.
	Requeue(ctx context.Context, userID id.UserID, items []models.DigestItem) error
	// Users lists users with pending items.
	Users(ctx context.Context) ([]id.UserID, error)
}

type InMemoryQueue struct {
	mu    sync.Mutex
	items map[id.UserID][]models.DigestItem
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{items: make(map[id.UserID][]models.DigestItem)}
}

func (q *InMemoryQueue) Enqueue(_ context.Context, userID id.UserID, item models.DigestItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[userID] = append(q.items[userID], item)
	return nil
}

func (q *InMemoryQueue) Drain(_ context.Context, userID id.UserID) ([]models.DigestItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items[userID]
	delete(q.items, userID)
	return items, nil
}

func (q *InMemoryQueue) Requeue(_ context.Context, userID id.UserID, items []models.DigestItem) error {
	if len(items) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[userID] = append(slices.Clone(items), q.items[userID]...)
	return nil
}

func (q *InMemoryQueue) Users(_ context.Context) ([]id.UserID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]id.UserID, 0, len(q.items))
	for u, items := range q.items {
		if len(items) > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

// Len returns the number of pending items for the user.
func (q *InMemoryQueue) Len(userID id.UserID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[userID])
}

// RedisQueue keeps one list per user plus a set of users with pending items.
type RedisQueue struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "digest:"
	}
	return &RedisQueue{client: client, prefix: prefix}
}

func (q *RedisQueue) listKey(userID id.UserID) string { return q.prefix + "items:" + userID.String() }
func (q *RedisQueue) usersKey() string                { return q.prefix + "users" }

// DeadLetterKey is the list holding the user's undecodable entries.
func (q *RedisQueue) DeadLetterKey(userID id.UserID) string {
	return q.prefix + "dead:" + userID.String()
}

func (q *RedisQueue) Enqueue(ctx context.Context, userID id.UserID, item models.DigestItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode digest item: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, q.listKey(userID), raw)
		p.SAdd(ctx, q.usersKey(), userID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue digest item: %w", err)
	}
	return nil
}

func (q *RedisQueue) Drain(ctx context.Context, userID id.UserID) ([]models.DigestItem, error) {
	var lrange *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		lrange = p.LRange(ctx, q.listKey(userID), 0, -1)
		p.Del(ctx, q.listKey(userID))
		p.SRem(ctx, q.usersKey(), userID.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain digest: %w", err)
	}
	raws := lrange.Val()
	items := make([]models.DigestItem, 0, len(raws))
	var bad []any
	for _, raw := range raws {
		var item models.DigestItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			bad = append(bad, raw)
			continue
		}
		items = append(items, item)
	}
	if len(bad) == 0 {
		return items, nil
	}
	err = fmt.Errorf("%d entries for user %s moved to %s: %w", len(bad), userID, q.DeadLetterKey(userID), ErrUndecodable)
	if perr := q.client.RPush(ctx, q.DeadLetterKey(userID), bad...).Err(); perr != nil {
		err = errors.Join(err, fmt.Errorf("park undecodable digest items: %w", perr))
	}
	return items, err
}

func (q *RedisQueue) Requeue(ctx context.Context, userID id.UserID, items []models.DigestItem) error {
	if len(items) == 0 {
		return nil
	}
	// LPUSH prepends one at a time, so push in reverse to keep order.
	raws := make([]any, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		raw, err := json.Marshal(items[i])
		if err != nil {
			return fmt.Errorf("encode digest item: %w", err)
		}
		raws = append(raws, raw)
	}
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, q.listKey(userID), raws...)
		p.SAdd(ctx, q.usersKey(), userID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue digest: %w", err)
	}
	return nil
}

func (q *RedisQueue) Users(ctx context.Context) ([]id.UserID, error) {
	members, err := q.client.SMembers(ctx, q.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list digest users: %w", err)
	}
	out := make([]id.UserID, 0, len(members))
	for _, m := range members {
		u, err := id.ParseUserID(m)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
