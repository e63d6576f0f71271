package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisMirrorRoundTripKeepsOrder(t *testing.T) {
	mr, client := setupTestRedis(t)
	mirror := NewRedisMirror(client, nil)

	source := NewStore(nil)
	source.OnUpsert(mirror.Hook())
	_, err := source.LoadDefaultSeed()
	require.NoError(t, err)
	_, err = source.SetVerification("james-wilson", VerificationFailed)
	require.NoError(t, err)

	assert.True(t, mr.Exists("catalog:therapist:sarah-johnson"))
	members, err := mr.ZMembers(mirrorIndexKey)
	require.NoError(t, err)
	assert.Len(t, members, 4)

	restored := NewStore(nil)
	n, err := mirror.Restore(context.Background(), restored)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, ids(source.Snapshot()), ids(restored.Snapshot()))

	james, err := restored.Get("james-wilson")
	require.NoError(t, err)
	assert.Equal(t, VerificationFailed, james.Verification)
	assert.Equal(t, 150, james.Sessions)
}

func TestRedisMirrorRestoreOverSeedKeepsReviews(t *testing.T) {
	_, client := setupTestRedis(t)
	mirror := NewRedisMirror(client, nil)
	ctx := context.Background()

	first := NewStore(nil)
	_, err := first.LoadDefaultSeed()
	require.NoError(t, err)
	first.OnUpsert(mirror.Hook())
	reviewed, err := first.RecordReview("sarah-johnson", 1)
	require.NoError(t, err)
	require.Equal(t, 251, reviewed.Sessions)

	// Startup order: seed, restore, then attach the hook.
	second := NewStore(nil)
	_, err = second.LoadDefaultSeed()
	require.NoError(t, err)
	n, err := mirror.Restore(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	second.OnUpsert(mirror.Hook())

	sarah, err := second.Get("sarah-johnson")
	require.NoError(t, err)
	assert.Equal(t, 251, sarah.Sessions)
	assert.InDelta(t, reviewed.Rating, sarah.Rating, 0.001)
	assert.Equal(t, []string{"sarah-johnson", "michael-chen", "emily-rodriguez", "james-wilson"}, ids(second.Snapshot()))

	sarah.Bio = "Updated after restart"
	_, err = second.Upsert(sarah)
	require.NoError(t, err)
	saved, err := mirror.Load(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 251, saved[0].Sessions)
	assert.Equal(t, "Updated after restart", saved[0].Bio)
}

func TestRedisMirrorRestoreKeepsVerification(t *testing.T) {
	_, client := setupTestRedis(t)
	mirror := NewRedisMirror(client, nil)
	ctx := context.Background()
	require.NoError(t, mirror.Save(ctx, TherapistProfile{
		ID: "a", Name: "Dr. A", Certification: CertificationNLP,
		Verification: VerificationVerified, Rating: 4.5, Sessions: 12,
	}))

	store := NewStore(nil)
	_, err := mirror.Restore(ctx, store)
	require.NoError(t, err)
	a, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, a.Verification)
	assert.Equal(t, 12, a.Sessions)
}

func TestRedisMirrorSkipsMissingProfiles(t *testing.T) {
	mr, client := setupTestRedis(t)
	mirror := NewRedisMirror(client, nil)
	ctx := context.Background()

	require.NoError(t, mirror.Save(ctx, TherapistProfile{ID: "a", Name: "Dr. A", Certification: CertificationNLP}))
	require.NoError(t, mirror.Save(ctx, TherapistProfile{ID: "b", Name: "Dr. B", Certification: CertificationNLP}))
	mr.Del("catalog:therapist:a")

	profiles, err := mirror.Load(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "b", profiles[0].ID)
}

func TestRedisMirrorHookSwallowsErrors(t *testing.T) {
	mr, client := setupTestRedis(t)
	mirror := NewRedisMirror(client, nil)
	mirror.timeout = 100 * time.Millisecond
	store := NewStore(nil)
	store.OnUpsert(mirror.Hook())
	mr.Close()

	_, err := store.Upsert(TherapistProfile{ID: "a", Name: "Dr. A", Certification: CertificationNLP})
	require.NoError(t, err)
}

func TestNewRedisMirrorPanicsWithoutClient(t *testing.T) {
	assert.Panics(t, func() { NewRedisMirror(nil, nil) })
}
