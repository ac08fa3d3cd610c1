package state

import (
	"context"
	"encoding/json"
	"fmt"

	"imss/harvester/internal/domain"

	"github.com/redis/go-redis/v9"
)

// ProgressStore remembers the last leaf completed per period so an
// interrupted run can pick up from there with --continue
type ProgressStore interface {
	GetLastLeaf(ctx context.Context, periodID string) (*domain.Leaf, error)
	SetLastLeaf(ctx context.Context, leaf domain.Leaf) error
	Clear(ctx context.Context, periodID string) error
}

type redisProgressStore struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisProgressStore(redisClient *redis.Client) ProgressStore {
	return &redisProgressStore{
		redisClient: redisClient,
		keyPrefix:   "imss:progress:leaf:",
	}
}

func (s *redisProgressStore) GetLastLeaf(ctx context.Context, periodID string) (*domain.Leaf, error) {
	key := s.keyPrefix + periodID
	val, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No progress saved yet
		}
		return nil, fmt.Errorf("failed to get last leaf for period %s: %w", periodID, err)
	}

	var leaf domain.Leaf
	if err := json.Unmarshal([]byte(val), &leaf); err != nil {
		return nil, fmt.Errorf("failed to parse last leaf for period %s: %w", periodID, err)
	}

	return &leaf, nil
}

func (s *redisProgressStore) SetLastLeaf(ctx context.Context, leaf domain.Leaf) error {
	data, err := json.Marshal(leaf)
	if err != nil {
		return fmt.Errorf("failed to encode leaf %s: %w", leaf.Path(), err)
	}

	key := s.keyPrefix + leaf.PeriodID
	if err := s.redisClient.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last leaf for period %s: %w", leaf.PeriodID, err)
	}
	return nil
}

func (s *redisProgressStore) Clear(ctx context.Context, periodID string) error {
	if err := s.redisClient.Del(ctx, s.keyPrefix+periodID).Err(); err != nil {
		return fmt.Errorf("failed to clear progress for period %s: %w", periodID, err)
	}
	return nil
}

// ResumePath returns the --start-from segments pointing at a leaf
func ResumePath(leaf *domain.Leaf) []string {
	if leaf == nil {
		return nil
	}
	path := []string{leaf.CategoryID, leaf.SubcategoryID}
	if leaf.SubItemID != "" {
		path = append(path, leaf.SubItemID)
	}
	return path
}
