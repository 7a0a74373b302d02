package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-W05
var week5 = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

func setupMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func setupService(t *testing.T, mode Mode, limit int) (*Service, *miniredis.Miniredis) {
	t.Helper()
	rdb, mr := setupMiniredis(t)
	return NewService(NewRedisStore(rdb), Options{Limit: limit, Mode: mode}), mr
}

func forEachMode(t *testing.T, fn func(t *testing.T, mode Mode)) {
	for _, mode := range []Mode{ModeOptimistic, ModeAtomic} {
		t.Run(string(mode), func(t *testing.T) { fn(t, mode) })
	}
}

func TestService_FirstCallCreatesCounter(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, mr := setupService(t, mode, 50)

		usage, err := svc.Reserve(context.Background(), "a@x.com", week5)
		require.NoError(t, err)
		assert.Equal(t, 1, usage.Used)
		assert.Equal(t, 50, usage.Limit)
		assert.Equal(t, "2024-W05", usage.Period)

		val, err := mr.Get("quota:2024-W05:a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "1", val)
	})
}

func TestService_FiftyFirstCallRejected(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, _ := setupService(t, mode, 50)
		ctx := context.Background()

		for i := 1; i <= 50; i++ {
			usage, err := svc.Reserve(ctx, "a@x.com", week5)
			require.NoError(t, err, "call %d", i)
			assert.Equal(t, i, usage.Used)
		}

		usage, err := svc.Reserve(ctx, "a@x.com", week5)
		require.ErrorIs(t, err, ErrExceeded)
		var exceeded *ExceededError
		require.ErrorAs(t, err, &exceeded)
		assert.Equal(t, 50, exceeded.Usage.Used)
		assert.Equal(t, 50, exceeded.Usage.Limit)
		assert.Equal(t, 50, usage.Used)
	})
}

func TestService_ExceededLeavesCounterUntouched(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, mr := setupService(t, mode, 50)
		key := "quota:2024-W05:a@x.com"
		require.NoError(t, mr.Set(key, "50"))

		_, err := svc.Reserve(context.Background(), "a@x.com", week5)
		require.ErrorIs(t, err, ErrExceeded)

		val, err := mr.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "50", val)
	})
}

func TestService_IdentityIsCaseInsensitive(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, _ := setupService(t, mode, 2)
		ctx := context.Background()

		_, err := svc.Reserve(ctx, "A@X.com", week5)
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "  a@x.COM ", week5)
		require.NoError(t, err)

		_, err = svc.Reserve(ctx, "a@x.com", week5)
		assert.ErrorIs(t, err, ErrExceeded)
	})
}

func TestService_NewPeriodStartsFresh(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, _ := setupService(t, mode, 1)
		ctx := context.Background()

		_, err := svc.Reserve(ctx, "a@x.com", week5)
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "a@x.com", week5)
		require.ErrorIs(t, err, ErrExceeded)

		usage, err := svc.Reserve(ctx, "a@x.com", week5.Add(PeriodLength))
		require.NoError(t, err)
		assert.Equal(t, "2024-W06", usage.Period)
		assert.Equal(t, 1, usage.Used)
	})
}

func TestService_CounterHasRetentionTTL(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, mr := setupService(t, mode, 50)

		_, err := svc.Reserve(context.Background(), "a@x.com", week5)
		require.NoError(t, err)

		ttl := mr.TTL("quota:2024-W05:a@x.com")
		assert.Equal(t, DefaultRetention, ttl)
		assert.GreaterOrEqual(t, ttl, 2*PeriodLength)

		mr.FastForward(DefaultRetention + time.Second)
		assert.False(t, mr.Exists("quota:2024-W05:a@x.com"))
	})
}

func TestService_Release(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, mr := setupService(t, mode, 50)
		ctx := context.Background()

		usage, err := svc.Reserve(ctx, "a@x.com", week5)
		require.NoError(t, err)
		_, err = svc.Reserve(ctx, "a@x.com", week5)
		require.NoError(t, err)

		released, err := svc.Release(ctx, usage)
		require.NoError(t, err)
		assert.Equal(t, 1, released.Used)

		val, err := mr.Get("quota:2024-W05:a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "1", val)
	})
}

func TestService_ReleaseNeverGoesNegative(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, _ := setupService(t, mode, 50)

		released, err := svc.Release(context.Background(), Usage{Identity: "a@x.com", Period: "2024-W05"})
		require.NoError(t, err)
		assert.Equal(t, 0, released.Used)
	})
}

func TestService_Status(t *testing.T) {
	svc, mr := setupService(t, ModeOptimistic, 50)
	require.NoError(t, mr.Set("quota:2024-W05:a@x.com", "7"))

	usage, err := svc.Status(context.Background(), "A@x.com", week5)
	require.NoError(t, err)
	assert.Equal(t, 7, usage.Used)
	assert.Equal(t, 43, usage.Remaining())
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), usage.ResetsAt)

	val, _ := mr.Get("quota:2024-W05:a@x.com")
	assert.Equal(t, "7", val)
}

func TestService_AtomicModeHoldsUnderConcurrency(t *testing.T) {
	svc, mr := setupService(t, ModeAtomic, 5)
	ctx := context.Background()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reserve(ctx, "a@x.com", week5); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), accepted.Load())
	val, err := mr.Get("quota:2024-W05:a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "5", val)
}

type plainStore struct {
	values map[string]int
}

func (p *plainStore) Get(_ context.Context, key string) (int, error) { return p.values[key], nil }

func (p *plainStore) Set(_ context.Context, key string, value int, _ time.Duration) error {
	p.values[key] = value
	return nil
}

func TestService_AtomicFallsBackWithoutAtomicStore(t *testing.T) {
	svc := NewService(&plainStore{values: map[string]int{}}, Options{Mode: ModeAtomic})
	assert.Equal(t, ModeOptimistic, svc.Mode())
	assert.Equal(t, DefaultWeeklyLimit, svc.Limit())

	usage, err := svc.Reserve(context.Background(), "a@x.com", week5)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
}

func TestService_StoreErrorIsReturned(t *testing.T) {
	forEachMode(t, func(t *testing.T, mode Mode) {
		svc, mr := setupService(t, mode, 50)
		mr.Close()

		_, err := svc.Reserve(context.Background(), "a@x.com", week5)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrExceeded)
	})
}
