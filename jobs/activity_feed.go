package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFeedLength caps how many recent transitions a department feed keeps.
const DefaultFeedLength = 200

// ActivityFeed keeps the latest committed transitions per department in Redis
// sorted sets. Redelivered tasks re-add the same member, so a retry never
// duplicates an entry.
type ActivityFeed struct {
	client redis.Cmdable
	prefix string
	limit  int64
	ttl    time.Duration
}

// NewActivityFeed builds the feed. limit <= 0 uses DefaultFeedLength.
func NewActivityFeed(client redis.Cmdable, prefix string, limit int, ttl time.Duration) *ActivityFeed {
	if limit <= 0 {
		limit = DefaultFeedLength
	}
	return &ActivityFeed{client: client, prefix: strings.TrimSuffix(prefix, ":"), limit: int64(limit), ttl: ttl}
}

// Name implements Collaborator.
func (f *ActivityFeed) Name() string { return "activity_feed" }

// DocumentCommitted implements Collaborator.
func (f *ActivityFeed) DocumentCommitted(ctx context.Context, payload DocumentCommittedPayload) error {
	member, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("activity feed: encode: %w", err)
	}
	key := f.key(payload.Department)
	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(payload.OccurredAt.UnixMilli()), Member: string(member)})
		pipe.ZRemRangeByRank(ctx, key, 0, -f.limit-1)
		if f.ttl > 0 {
			pipe.Expire(ctx, key, f.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("activity feed: %w", err)
	}
	return nil
}

// Recent returns up to n entries of a department, newest first.
func (f *ActivityFeed) Recent(ctx context.Context, department string, n int) ([]DocumentCommittedPayload, error) {
	if n <= 0 {
		n = 20
	}
	raw, err := f.client.ZRevRange(ctx, f.key(department), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("activity feed: %w", err)
	}
	out := make([]DocumentCommittedPayload, 0, len(raw))
	for _, item := range raw {
		var p DocumentCommittedPayload
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("activity feed: decode: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *ActivityFeed) key(department string) string {
	dept := strings.ToLower(strings.TrimSpace(department))
	if dept == "" {
		dept = "_"
	}
	return f.prefix + ":activity:" + dept
}
