package querycache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testKey = "students"

type reply struct {
	data []string
	err  error
}

// gatedFetch hands every fetch call to the test, which answers it.
type gatedFetch struct {
	calls chan chan reply
	count atomic.Int32
}

func newGatedFetch() *gatedFetch {
	return &gatedFetch{calls: make(chan chan reply, 16)}
}

func (g *gatedFetch) fetch(ctx context.Context) ([]string, error) {
	g.count.Add(1)
	ch := make(chan reply, 1)
	g.calls <- ch
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedFetch) next(t *testing.T) chan reply {
	t.Helper()
	select {
	case ch := <-g.calls:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not started")
		return nil
	}
}

// staticFetch answers immediately with the current value of data.
type staticFetch struct {
	data  atomic.Value
	err   atomic.Value
	count atomic.Int32
}

func newStaticFetch(data ...string) *staticFetch {
	f := &staticFetch{}
	f.data.Store(data)
	f.err.Store(errBox{})
	return f
}

type errBox struct{ err error }

func (f *staticFetch) fetch(context.Context) ([]string, error) {
	f.count.Add(1)
	if e := f.err.Load().(errBox); e.err != nil {
		return nil, e.err
	}
	return f.data.Load().([]string), nil
}

func newTestCache(t *testing.T) *Cache[[]string] {
	t.Helper()
	c := New[[]string](context.Background())
	t.Cleanup(c.Close)
	return c
}

func Test_Read_LoadingThenSuccess(t *testing.T) {
	c := newTestCache(t)
	g := newGatedFetch()

	res := c.Read(testKey, g.fetch)
	require.Equal(t, StatusLoading, res.Status)
	require.True(t, res.Fetching)

	// a second read while loading must not start another fetch
	res = c.Read(testKey, g.fetch)
	require.Equal(t, StatusLoading, res.Status)

	g.next(t) <- reply{data: []string{"Ann"}}

	res, err := c.Await(context.Background(), testKey, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, []string{"Ann"}, res.Data)
	require.EqualValues(t, 1, g.count.Load())

	// cached: no new fetch
	res = c.Read(testKey, g.fetch)
	require.Equal(t, StatusSuccess, res.Status)
	require.EqualValues(t, 1, g.count.Load())
}

func Test_Read_ErrorUntilRefetch(t *testing.T) {
	c := newTestCache(t)
	f := newStaticFetch("Ann")
	f.err.Store(errBox{errors.New("boom")})

	res, err := c.Await(context.Background(), testKey, f.fetch)
	require.NoError(t, err)
	require.Equal(t, StatusError, res.Status)
	require.EqualError(t, res.Err, "boom")

	// errors are sticky: reading again does not refetch
	res = c.Read(testKey, f.fetch)
	require.Equal(t, StatusError, res.Status)
	require.EqualValues(t, 1, f.count.Load())

	f.err.Store(errBox{})
	<-c.Refetch(testKey)

	res = c.Read(testKey, f.fetch)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, []string{"Ann"}, res.Data)
	require.EqualValues(t, 2, f.count.Load())
}

func Test_Invalidate_ReplacesSnapshot(t *testing.T) {
	c := newTestCache(t)
	f := newStaticFetch("Ann")

	res, err := c.Await(context.Background(), testKey, f.fetch)
	require.NoError(t, err)
	require.Equal(t, []string{"Ann"}, res.Data)

	f.data.Store([]string{"Ann", "Bo"})
	<-c.Invalidate(testKey)

	res = c.Read(testKey, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, []string{"Ann", "Bo"}, res.Data)
	require.EqualValues(t, 2, f.count.Load())
}

func Test_Invalidate_LoadingUntilRefetchSettles(t *testing.T) {
	c := newTestCache(t)
	g := newGatedFetch()

	c.Read(testKey, g.fetch)
	g.next(t) <- reply{data: []string{"Ann"}}
	_, err := c.Await(context.Background(), testKey, nil)
	require.NoError(t, err)

	done := c.Invalidate(testKey)
	res := c.Read(testKey, nil)
	require.Equal(t, StatusLoading, res.Status)
	require.True(t, res.HasData, "stale data stays available while loading")

	g.next(t) <- reply{data: []string{}}
	<-done

	res = c.Read(testKey, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Empty(t, res.Data)
}

func Test_StaleResponse_Dropped(t *testing.T) {
	c := newTestCache(t)
	g := newGatedFetch()

	c.Read(testKey, g.fetch)
	older := g.next(t)

	done := c.Invalidate(testKey)
	newer := g.next(t)

	newer <- reply{data: []string{"new"}}
	<-done

	res := c.Read(testKey, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, []string{"new"}, res.Data)

	older <- reply{data: []string{"old"}}
	require.Eventually(t, func() bool {
		return c.Stats(testKey).Dropped == 1
	}, 2*time.Second, 5*time.Millisecond)

	res = c.Read(testKey, nil)
	require.Equal(t, []string{"new"}, res.Data)
}

func Test_OlderResponse_FirstDoesNotEndLoading(t *testing.T) {
	c := newTestCache(t)
	g := newGatedFetch()

	c.Read(testKey, g.fetch)
	older := g.next(t)
	done := c.Invalidate(testKey)
	newer := g.next(t)

	older <- reply{data: []string{"old"}}
	require.Eventually(t, func() bool {
		return c.Stats(testKey).Fetches == 1
	}, 2*time.Second, 5*time.Millisecond)

	// the pre-invalidation response is applied but does not count as fresh
	res := c.Read(testKey, nil)
	require.Equal(t, StatusLoading, res.Status)

	newer <- reply{data: []string{"new"}}
	<-done
	res = c.Read(testKey, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, []string{"new"}, res.Data)
}

func Test_Mutate_SuccessRefetchesOnce(t *testing.T) {
	c := newTestCache(t)
	f := newStaticFetch("Ann")
	_, err := c.Await(context.Background(), testKey, f.fetch)
	require.NoError(t, err)

	got, err := Mutate(context.Background(), c, func(context.Context) (string, error) {
		f.data.Store([]string{})
		return "deleted", nil
	}, testKey)
	require.NoError(t, err)
	require.Equal(t, "deleted", got)
	require.EqualValues(t, 2, f.count.Load())

	res := c.Read(testKey, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Empty(t, res.Data)
	require.Zero(t, c.Pending())
}

func Test_Mutate_FailureLeavesSnapshot(t *testing.T) {
	c := newTestCache(t)
	f := newStaticFetch("Ann")
	_, err := c.Await(context.Background(), testKey, f.fetch)
	require.NoError(t, err)

	opErr := errors.New("rejected")
	_, err = Mutate(context.Background(), c, func(context.Context) (struct{}, error) {
		return struct{}{}, opErr
	}, testKey)
	require.ErrorIs(t, err, opErr)
	require.EqualValues(t, 1, f.count.Load())

	res := c.Read(testKey, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, []string{"Ann"}, res.Data)
}

func Test_Mutate_RefetchFailureIsNotReturned(t *testing.T) {
	c := newTestCache(t)
	f := newStaticFetch("Ann")
	_, err := c.Await(context.Background(), testKey, f.fetch)
	require.NoError(t, err)

	_, err = Mutate(context.Background(), c, func(context.Context) (int, error) {
		f.err.Store(errBox{errors.New("list down")})
		return 1, nil
	}, testKey)
	require.NoError(t, err)

	res := c.Read(testKey, nil)
	require.Equal(t, StatusError, res.Status)
	require.EqualError(t, res.Err, "list down")
}

func Test_Mutate_Pending(t *testing.T) {
	c := newTestCache(t)
	release := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		_, _ = Mutate(context.Background(), c, func(context.Context) (int, error) {
			<-release
			return 0, nil
		}, testKey)
	}()

	require.Eventually(t, func() bool { return c.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	<-finished
	require.Zero(t, c.Pending())
}

func Test_Subscribe_NotifiesOnSnapshotChange(t *testing.T) {
	c := newTestCache(t)
	f := newStaticFetch("Ann")

	updates, cancel := c.Subscribe()
	defer cancel()

	_, err := c.Await(context.Background(), testKey, f.fetch)
	require.NoError(t, err)

	select {
	case key := <-updates:
		require.Equal(t, testKey, key)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	// cancelling closes the channel
	cancel()
	for range updates {
	}
}

func Test_Close_DiscardsSnapshots(t *testing.T) {
	c := New[[]string](context.Background())
	g := newGatedFetch()

	c.Read(testKey, g.fetch)
	g.next(t)

	// Close cancels the outstanding fetch and waits for it
	c.Close()

	res := c.Read(testKey, g.fetch)
	require.Equal(t, StatusError, res.Status)
	require.ErrorIs(t, res.Err, ErrClosed)
	require.Equal(t, Stats{}, c.Stats(testKey))
}

func Test_Await_ContextCancelled(t *testing.T) {
	c := newTestCache(t)
	g := newGatedFetch()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := c.Await(ctx, testKey, g.fetch)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StatusLoading, res.Status)
}

func Test_Stats_AverageLatency(t *testing.T) {
	now := time.Unix(0, 0)
	var ticks atomic.Int64
	clock := func() time.Time {
		// every call advances the clock by 10ms
		return now.Add(time.Duration(ticks.Add(1)) * 10 * time.Millisecond)
	}
	c := New[[]string](context.Background(), WithClock(clock), WithStatsWindow(2))
	defer c.Close()

	f := newStaticFetch("Ann")
	_, err := c.Await(context.Background(), testKey, f.fetch)
	require.NoError(t, err)

	st := c.Stats(testKey)
	require.Equal(t, 1, st.Fetches)
	require.Equal(t, 0, st.Failures)
	require.Equal(t, 10*time.Millisecond, st.AvgFetch)
}
