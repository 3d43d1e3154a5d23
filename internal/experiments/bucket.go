package experiments

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"kazka/internal/caching"

	"github.com/google/uuid"
)

// assignments are sticky for the experiment's practical lifetime
const assignmentTTL = 90 * 24 * time.Hour

// Bucket deterministically assigns a user to one of the variants. The same
// user and test always land in the same variant, with no coordination needed
// between instances.
func Bucket(userID uuid.UUID, testID string, variants []string) string {
	if len(variants) == 0 {
		return ""
	}
	h := fnv.New32a()
	h.Write([]byte(testID))
	h.Write(userID[:])
	return variants[h.Sum32()%uint32(len(variants))]
}

// AssignmentStore records which variant a user saw, for analysis joins
type AssignmentStore interface {
	Record(ctx context.Context, userID uuid.UUID, testID, variant string) error
	Lookup(ctx context.Context, userID uuid.UUID, testID string) (string, error)
}

type redisAssignmentStore struct {
	cache caching.CacheService
}

func NewRedisAssignmentStore(cache caching.CacheService) AssignmentStore {
	return &redisAssignmentStore{cache: cache}
}

func assignmentKey(userID uuid.UUID, testID string) string {
	return fmt.Sprintf("experiment:%s:%s", testID, userID)
}

func (s *redisAssignmentStore) Record(ctx context.Context, userID uuid.UUID, testID, variant string) error {
	return s.cache.SetString(ctx, assignmentKey(userID, testID), variant, assignmentTTL)
}

func (s *redisAssignmentStore) Lookup(ctx context.Context, userID uuid.UUID, testID string) (string, error) {
	return s.cache.GetString(ctx, assignmentKey(userID, testID))
}

// Assign buckets the user and records the assignment. Recording is best
// effort; the bucket itself never depends on the store.
func Assign(ctx context.Context, store AssignmentStore, userID uuid.UUID, testID string, variants []string) string {
	variant := Bucket(userID, testID, variants)
	if store != nil && variant != "" {
		_ = store.Record(ctx, userID, testID, variant)
	}
	return variant
}
