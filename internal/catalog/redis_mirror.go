package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/virevamind/pkg/logging"
)

const (
	mirrorIndexKey = "catalog:therapists"
	mirrorSeqKey   = "catalog:therapists:seq"
)

// RedisMirror persists catalog profiles to Redis so a restarted process can
// rebuild its directory in the original order.
type RedisMirror struct {
	client  redis.UniversalClient
	timeout time.Duration
	logger  *logging.Logger
}

// NewRedisMirror wraps a Redis client.
func NewRedisMirror(client redis.UniversalClient, logger *logging.Logger) *RedisMirror {
	if client == nil {
		panic("catalog: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisMirror{client: client, timeout: 2 * time.Second, logger: logger}
}

func profileKey(id string) string {
	return "catalog:therapist:" + id
}

// Save writes one profile and records its position in the index the first
// time it is seen.
func (m *RedisMirror) Save(ctx context.Context, p TherapistProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("catalog: marshal profile: %w", err)
	}
	if err := m.client.Set(ctx, profileKey(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("catalog: redis set %s: %w", p.ID, err)
	}
	exists, err := m.client.ZScore(ctx, mirrorIndexKey, p.ID).Result()
	if err == nil && exists > 0 {
		return nil
	}
	if err != nil && err != redis.Nil {
		return fmt.Errorf("catalog: redis index lookup %s: %w", p.ID, err)
	}
	seq, err := m.client.Incr(ctx, mirrorSeqKey).Result()
	if err != nil {
		return fmt.Errorf("catalog: redis sequence: %w", err)
	}
	if err := m.client.ZAddNX(ctx, mirrorIndexKey, redis.Z{Score: float64(seq), Member: p.ID}).Err(); err != nil {
		return fmt.Errorf("catalog: redis index add %s: %w", p.ID, err)
	}
	return nil
}

// Hook adapts Save to Store.OnUpsert. Failures are logged, never surfaced.
func (m *RedisMirror) Hook() func(TherapistProfile) {
	return func(p TherapistProfile) {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.Save(ctx, p); err != nil {
			m.logger.Warn("catalog mirror write failed", "error", err, "therapist_id", p.ID)
		}
	}
}

// Load returns every mirrored profile in index order. Index entries whose
// profile key has vanished are skipped.
func (m *RedisMirror) Load(ctx context.Context) ([]TherapistProfile, error) {
	ids, err := m.client.ZRange(ctx, mirrorIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog: redis index range: %w", err)
	}
	out := make([]TherapistProfile, 0, len(ids))
	for _, id := range ids {
		raw, err := m.client.Get(ctx, profileKey(id)).Bytes()
		if err == redis.Nil {
			m.logger.Warn("catalog mirror index points at missing profile", "therapist_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: redis get %s: %w", id, err)
		}
		var p TherapistProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("catalog: decode profile %s: %w", id, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Restore loads the mirror into store and returns how many profiles were
// replayed. Mirrored profiles replace existing ones as saved, review
// counters and verification included.
func (m *RedisMirror) Restore(ctx context.Context, store *Store) (int, error) {
	profiles, err := m.Load(ctx)
	if err != nil {
		return 0, err
	}
	for i, p := range profiles {
		if _, err := store.restore(p); err != nil {
			return i, fmt.Errorf("catalog: restore %s: %w", p.ID, err)
		}
	}
	return len(profiles), nil
}
