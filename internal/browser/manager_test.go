package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/types"
)

// newTestManager returns a manager whose launch and watch hooks are
// stubbed so no engine binary is required.
func newTestManager(launch func(ctx context.Context) (*rod.Browser, error)) *Manager {
	m := NewManager(&config.Config{Headless: true})
	m.launch = launch
	m.watch = func(*rod.Browser) {}
	return m
}

func TestEnsureStartedSerialisesStart(t *testing.T) {
	var launches atomic.Int32
	m := newTestManager(func(ctx context.Context) (*rod.Browser, error) {
		launches.Add(1)
		time.Sleep(50 * time.Millisecond)
		return rod.New(), nil
	})

	const callers = 10
	results := make([]*rod.Browser, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := m.ensureStarted(context.Background())
			require.NoError(t, err)
			results[i] = b
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), launches.Load(), "concurrent acquirers must share one start")
	for _, b := range results {
		assert.Same(t, results[0], b)
	}
	assert.Equal(t, StateReady, m.State())
	assert.True(t, m.Connected())
}

func TestStartRetriesOnceThenSucceeds(t *testing.T) {
	var launches atomic.Int32
	m := newTestManager(func(ctx context.Context) (*rod.Browser, error) {
		if launches.Add(1) == 1 {
			return nil, errors.New("spawn failed")
		}
		return rod.New(), nil
	})

	b, err := m.ensureStarted(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, int32(2), launches.Load())
}

func TestStartFailureIsBrowserUnavailable(t *testing.T) {
	var launches atomic.Int32
	m := newTestManager(func(ctx context.Context) (*rod.Browser, error) {
		launches.Add(1)
		return nil, errors.New("no engine binary")
	})

	_, err := m.ensureStarted(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBrowserUnavailable)
	assert.Equal(t, int32(2), launches.Load(), "one retry, then give up")

	// A failed cold start leaves the manager restartable.
	assert.Equal(t, StateUninitialised, m.State())
}

func TestDegradedRestartsOnNextAcquire(t *testing.T) {
	var launches atomic.Int32
	m := newTestManager(func(ctx context.Context) (*rod.Browser, error) {
		launches.Add(1)
		return rod.New(), nil
	})

	first, err := m.ensureStarted(context.Background())
	require.NoError(t, err)

	m.markDegraded(first, types.ErrBrowserDisconnected)
	assert.Equal(t, StateDegraded, m.State())
	assert.False(t, m.Connected())
	assert.Equal(t, time.Duration(0), m.Uptime())

	second, err := m.ensureStarted(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), launches.Load())
	assert.Equal(t, int64(1), m.Restarts())
	assert.Equal(t, StateReady, m.State())
}

func TestMarkDegradedIgnoresStaleHandle(t *testing.T) {
	m := newTestManager(func(ctx context.Context) (*rod.Browser, error) {
		return rod.New(), nil
	})

	current, err := m.ensureStarted(context.Background())
	require.NoError(t, err)

	m.markDegraded(rod.New(), types.ErrBrowserDisconnected)
	assert.Equal(t, StateReady, m.State())

	m.markDegraded(current, types.ErrBrowserDisconnected)
	assert.Equal(t, StateDegraded, m.State())
}

func TestShutdownIdempotent(t *testing.T) {
	m := newTestManager(func(ctx context.Context) (*rod.Browser, error) {
		t.Fatal("launch must not be called")
		return nil, nil
	})

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
	assert.Equal(t, StateShutdown, m.State())

	_, err := m.ensureStarted(context.Background())
	assert.ErrorIs(t, err, types.ErrBrowserShuttingDown)
}

func TestEnsureStartedHonoursContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	m := newTestManager(func(ctx context.Context) (*rod.Browser, error) {
		close(started)
		<-release
		return rod.New(), nil
	})

	go func() {
		_, _ = m.ensureStarted(context.Background())
	}()
	<-started

	// A second caller waiting on the in-flight start must unblock when
	// its own context fires.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.ensureStarted(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialised", StateUninitialised.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "shutdown", StateShutdown.String())
}

func TestReleaseSessionNil(t *testing.T) {
	m := newTestManager(nil)
	m.ReleaseSession(nil) // must not panic
}
