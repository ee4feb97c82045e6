package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ndquoc/evalsync/internal/core/domain"
)

// FailedPageRepo implements storage.FailedPageRepository using Redis.
// Pages are held in a sorted set scored by retry count, so the least-retried
// page is always recovered first.
type FailedPageRepo struct {
	rdb       *redis.Client
	namespace string
}

// NewFailedPageRepo creates a new Redis-backed failed page repository.
func NewFailedPageRepo(client *Client, namespace string) *FailedPageRepo {
	if namespace == "" {
		namespace = "evalsync"
	}
	return &FailedPageRepo{
		rdb:       client.rdb,
		namespace: namespace,
	}
}

// Key helpers
func (r *FailedPageRepo) queueKey() string {
	return fmt.Sprintf("%s:failed_pages", r.namespace)
}

func (r *FailedPageRepo) pageKey(id string) string {
	return fmt.Sprintf("%s:failed_page:%s", r.namespace, id)
}

// Add enqueues a failed page.
func (r *FailedPageRepo) Add(ctx context.Context, page *domain.FailedPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal failed page: %w", err)
	}

	// Store the data with a 24h TTL; anything older is stale enough that the
	// next full sync run re-covers the range anyway.
	if err := r.rdb.Set(ctx, r.pageKey(page.ID), data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set failed page: %w", err)
	}

	if err := r.rdb.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(page.RetryCount),
		Member: page.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

// GetNext retrieves the failed page with the fewest retries.
func (r *FailedPageRepo) GetNext(ctx context.Context) (*domain.FailedPage, error) {
	results, err := r.rdb.ZRange(ctx, r.queueKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	id := results[0]

	data, err := r.rdb.Get(ctx, r.pageKey(id)).Bytes()
	if err == redis.Nil {
		// Data expired but ID still in queue, remove it
		r.rdb.ZRem(ctx, r.queueKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed page: %w", err)
	}

	var page domain.FailedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed page: %w", err)
	}
	return &page, nil
}

// IncrementRetry increments the retry count for a failed page.
func (r *FailedPageRepo) IncrementRetry(ctx context.Context, id string) error {
	data, err := r.rdb.Get(ctx, r.pageKey(id)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get failed page: %w", err)
	}

	var page domain.FailedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return fmt.Errorf("failed to unmarshal failed page: %w", err)
	}
	page.RetryCount++

	updated, err := json.Marshal(&page)
	if err != nil {
		return fmt.Errorf("failed to marshal failed page: %w", err)
	}
	if err := r.rdb.Set(ctx, r.pageKey(id), updated, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to update failed page: %w", err)
	}

	// Re-score so the least-retried page stays at the front.
	if err := r.rdb.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(page.RetryCount),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("failed to rescore queue: %w", err)
	}
	return nil
}

// MarkResolved removes a recovered page.
func (r *FailedPageRepo) MarkResolved(ctx context.Context, id string) error {
	if err := r.rdb.ZRem(ctx, r.queueKey(), id).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	if err := r.rdb.Del(ctx, r.pageKey(id)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

// Count returns the number of queued pages.
func (r *FailedPageRepo) Count(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}
