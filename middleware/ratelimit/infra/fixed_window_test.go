package infra

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/middleware/ratelimit/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestFixedWindow_AdmitsUpToLimitThenRejects(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	for _, limit := range []int{1, 2, 5, 60} {
		key := domain.Key("k" + strconv.Itoa(limit))
		for i := 0; i < limit; i++ {
			require.Truef(t, fw.Allow(key, limit), "call %d of %d should be admitted", i+1, limit)
		}
		require.False(t, fw.Allow(key, limit), "call beyond limit must be rejected")
		require.False(t, fw.Allow(key, limit), "rejections do not consume the window")
	}
}

func TestFixedWindow_RejectDoesNotIncrement(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	require.True(t, fw.Allow("k", 1))
	require.False(t, fw.Allow("k", 1))
	require.False(t, fw.Allow("k", 1))

	st, ok := fw.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 1, st.Count)
}

func TestFixedWindow_BoundaryScenario(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(60*time.Second, WithClock(clock.Now))
	key := domain.Key("ip1_auth")

	for i := 0; i < 5; i++ {
		require.True(t, fw.Allow(key, 5))
	}
	require.False(t, fw.Allow(key, 5))

	clock.Advance(61 * time.Second)
	require.True(t, fw.Allow(key, 5), "call after window must open a new window")

	st, ok := fw.Peek(key)
	require.True(t, ok)
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, clock.Now(), st.WindowStart)

	for i := 0; i < 4; i++ {
		clock.Advance(10 * time.Second)
		require.True(t, fw.Allow(key, 5))
	}
	require.False(t, fw.Allow(key, 5), "new window holds the same limit")
}

func TestFixedWindow_ExactBoundaryStartsNewWindow(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	require.True(t, fw.Allow("k", 1))
	require.False(t, fw.Allow("k", 1))

	clock.Advance(time.Minute - time.Nanosecond)
	require.False(t, fw.Allow("k", 1))

	clock.Advance(time.Nanosecond)
	require.True(t, fw.Allow("k", 1))
}

func TestFixedWindow_WindowAnchoredToFirstRequest(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	require.True(t, fw.Allow("early", 1))
	clock.Advance(30 * time.Second)
	require.True(t, fw.Allow("late", 1))

	clock.Advance(30 * time.Second)
	assert.True(t, fw.Allow("early", 1), "early key window expired")
	assert.False(t, fw.Allow("late", 1), "late key still inside its own window")

	clock.Advance(30 * time.Second)
	assert.True(t, fw.Allow("late", 1))
}

func TestFixedWindow_BurstAcrossBoundary(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	require.True(t, fw.Allow("k", 3))
	clock.Advance(59 * time.Second)
	require.True(t, fw.Allow("k", 3))
	require.True(t, fw.Allow("k", 3))
	require.False(t, fw.Allow("k", 3))

	clock.Advance(time.Second)
	admitted := 0
	for i := 0; i < 4; i++ {
		if fw.Allow("k", 3) {
			admitted++
		}
	}
	// 5 admissões em ~1s com limite 3: fraqueza conhecida da janela fixa.
	assert.Equal(t, 3, admitted)
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.True(t, fw.Allow("ip1_auth", 5))
	}
	require.False(t, fw.Allow("ip1_auth", 5))

	for i := 0; i < 60; i++ {
		require.Truef(t, fw.Allow("ip1_normal", 60), "normal call %d", i+1)
	}
	require.False(t, fw.Allow("ip1_normal", 60))
	require.True(t, fw.Allow("ip2_auth", 5))
}

func TestFixedWindow_ResetClearsAllKeys(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	require.True(t, fw.Allow("a", 1))
	require.True(t, fw.Allow("b", 1))
	require.False(t, fw.Allow("a", 1))
	require.Equal(t, 2, fw.Len())

	fw.Reset()
	require.Equal(t, 0, fw.Len())
	_, ok := fw.Peek("a")
	require.False(t, ok)

	assert.True(t, fw.Allow("a", 1))
	assert.True(t, fw.Allow("b", 1))
}

func TestFixedWindow_NonPositiveLimitRejects(t *testing.T) {
	fw := NewFixedWindow(time.Minute)
	assert.False(t, fw.Allow("k", 0))
	assert.False(t, fw.Allow("k", -1))
}

func TestFixedWindow_EmptyKeyIsJustAnotherKey(t *testing.T) {
	fw := NewFixedWindow(time.Minute)
	require.True(t, fw.Allow("", 1))
	require.False(t, fw.Allow("", 1))
	require.True(t, fw.Allow("x", 1))
}

func TestFixedWindow_PeekDoesNotCreateOrCount(t *testing.T) {
	clock := newFakeClock()
	fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

	_, ok := fw.Peek("k")
	require.False(t, ok)
	require.Equal(t, 0, fw.Len())

	require.True(t, fw.Allow("k", 2))
	st, ok := fw.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 1, st.Count)

	clock.Advance(time.Minute)
	st, ok = fw.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 0, st.Count, "expired window reports zero")
}

func TestFixedWindow_DefaultWindow(t *testing.T) {
	assert.Equal(t, time.Minute, NewFixedWindow(0).Window())
	assert.Equal(t, 5*time.Second, NewFixedWindow(5*time.Second).Window())
}

func TestFixedWindow_ConcurrentSameKeyNeverExceedsLimit(t *testing.T) {
	cases := []struct {
		callers int
		limit   int
	}{
		{callers: 200, limit: 10},
		{callers: 5, limit: 10},
		{callers: 50, limit: 50},
	}

	for _, tc := range cases {
		clock := newFakeClock()
		fw := NewFixedWindow(time.Minute, WithClock(clock.Now))

		var admitted atomic.Int64
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < tc.callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if fw.Allow("shared", tc.limit) {
					admitted.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int64(min(tc.callers, tc.limit)), admitted.Load(),
			"callers=%d limit=%d", tc.callers, tc.limit)
	}
}

func TestFixedWindow_ConcurrentDistinctKeys(t *testing.T) {
	fw := NewFixedWindow(time.Minute)

	const keys = 64
	const perKey = 20
	const limit = 7

	var admitted [keys]atomic.Int64
	var wg sync.WaitGroup
	for k := 0; k < keys; k++ {
		for i := 0; i < perKey; i++ {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				key := domain.ComposeKey("client-"+strconv.Itoa(k), domain.ClassNormal)
				if fw.Allow(key, limit) {
					admitted[k].Add(1)
				}
			}(k)
		}
	}
	wg.Wait()

	for k := 0; k < keys; k++ {
		assert.Equal(t, int64(limit), admitted[k].Load(), "key %d", k)
	}
	assert.Equal(t, keys, fw.Len())
}

func TestFixedWindow_ConcurrentResetNeverCorrupts(t *testing.T) {
	fw := NewFixedWindow(time.Minute)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				fw.Reset()
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				fw.Allow("k", 3)
				if st, ok := fw.Peek("k"); ok && (st.Count < 0 || st.Count > 3) {
					t.Errorf("corrupted count %d", st.Count)
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()
}
