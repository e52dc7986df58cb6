// Package browser owns the singleton rendering engine. One Chromium
// process serves every request; each request gets its own isolated
// incognito context so no state leaks between renders. The manager is a
// small state machine: Uninitialised, Starting, Ready, Degraded,
// Shutdown. Start is lazy and serialised; a crashed engine moves the
// manager to Degraded and the next acquire restarts it.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/metrics"
	"github.com/pageforge/pageforge/internal/types"
)

// State is the lifecycle state of the rendering engine.
type State int32

const (
	StateUninitialised State = iota
	StateStarting
	StateReady
	StateDegraded
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "uninitialised"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// shutdownGrace bounds how long Shutdown waits for the engine process
// and background goroutines to wind down.
const shutdownGrace = 10 * time.Second

// Manager supervises the engine process and hands out isolated sessions.
// Safe for concurrent use; the engine handle is owned by the manager
// alone and never escapes except inside a Session.
type Manager struct {
	cfg *config.Config

	// launch and watch are swappable so lifecycle tests can run without
	// a real engine binary.
	launch func(ctx context.Context) (*rod.Browser, error)
	watch  func(b *rod.Browser)

	mu        sync.Mutex
	state     State
	engine    *rod.Browser
	starting  chan struct{} // closed when the in-flight start attempt ends
	startedAt time.Time
	sessions  map[string]*Session

	restarts atomic.Int64
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a manager in the Uninitialised state. The engine is
// not launched until the first AcquireSession.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	m.launch = m.launchEngine
	m.watch = m.watchEngine
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the engine is up and usable.
func (m *Manager) Connected() bool {
	return m.State() == StateReady
}

// Uptime returns how long the current engine process has been up, or
// zero when it is not running.
func (m *Manager) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return 0
	}
	return time.Since(m.startedAt)
}

// Restarts returns how many times the engine has been relaunched after
// a crash or disconnect.
func (m *Manager) Restarts() int64 {
	return m.restarts.Load()
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ensureStarted returns the running engine, launching it first if
// necessary. Concurrent callers during a start attempt block on the same
// attempt; two engine processes are never launched.
func (m *Manager) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case StateShutdown:
			m.mu.Unlock()
			return nil, types.ErrBrowserShuttingDown

		case StateReady:
			b := m.engine
			m.mu.Unlock()
			return b, nil

		case StateStarting:
			ch := m.starting
			m.mu.Unlock()
			select {
			case <-ch:
				// Re-read the state; the attempt may have failed.
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case StateUninitialised, StateDegraded:
			wasDegraded := m.state == StateDegraded
			m.state = StateStarting
			ch := make(chan struct{})
			m.starting = ch
			m.mu.Unlock()

			b, err := m.startWithRetry(ctx)

			m.mu.Lock()
			if m.state == StateShutdown {
				m.mu.Unlock()
				close(ch)
				if b != nil {
					closeEngineWithTimeout(b, shutdownGrace)
				}
				return nil, types.ErrBrowserShuttingDown
			}
			if err != nil {
				if wasDegraded {
					m.state = StateDegraded
				} else {
					m.state = StateUninitialised
				}
				m.mu.Unlock()
				close(ch)
				return nil, err
			}

			m.state = StateReady
			m.engine = b
			m.startedAt = time.Now()
			if wasDegraded {
				m.restarts.Add(1)
				metrics.BrowserRestarts.Inc()
			}
			m.mu.Unlock()
			close(ch)

			m.watch(b)
			log.Info().Bool("restart", wasDegraded).Msg("Rendering engine ready")
			return b, nil
		}
	}
}

// startWithRetry launches the engine, retrying once before giving up
// with ErrBrowserUnavailable.
func (m *Manager) startWithRetry(ctx context.Context) (*rod.Browser, error) {
	b, err := m.launch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Engine launch failed, retrying once")
		b, err = m.launch(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("Engine launch failed after retry")
		return nil, fmt.Errorf("%w: %v", types.ErrBrowserUnavailable, err)
	}
	return b, nil
}

// watchEngine watches the engine's event stream. The stream closing
// means the CDP connection is gone: the process crashed or was killed.
func (m *Manager) watchEngine(b *rod.Browser) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		events := b.Event()
		for {
			select {
			case _, ok := <-events:
				if !ok {
					m.markDegraded(b, types.ErrBrowserDisconnected)
					return
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

// markDegraded transitions Ready to Degraded for the given engine handle
// and fails every outstanding session. Stale handles are ignored.
func (m *Manager) markDegraded(b *rod.Browser, cause error) {
	m.mu.Lock()
	if m.state != StateReady || m.engine != b {
		m.mu.Unlock()
		return
	}
	m.state = StateDegraded
	m.engine = nil
	orphans := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		orphans = append(orphans, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	log.Error().
		Err(cause).
		Int("orphaned_sessions", len(orphans)).
		Msg("Engine lost, entering degraded state")

	for _, s := range orphans {
		s.fail(cause)
	}
}

// ReleaseSession tears down a session and unregisters it. Safe to call
// with nil or more than once.
func (m *Manager) ReleaseSession(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	s.Close()
}

// Shutdown closes every session, then the engine process, within a
// bounded grace window. Idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.state == StateShutdown {
		m.mu.Unlock()
		return nil
	}
	m.state = StateShutdown
	b := m.engine
	m.engine = nil
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	close(m.stopCh)
	m.mu.Unlock()

	log.Info().Int("sessions", len(sessions)).Msg("Shutting down rendering engine")

	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, s := range sessions {
		sess := s
		eg.Go(func() error {
			sess.Close()
			return nil
		})
	}
	_ = eg.Wait()

	if b != nil {
		closeEngineWithTimeout(b, shutdownGrace)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Warn().Msg("Timeout waiting for engine watchers to stop")
	}

	log.Info().Msg("Rendering engine shut down")
	return nil
}

// closeEngineWithTimeout closes the engine process without letting a
// wedged CDP connection block shutdown forever.
func closeEngineWithTimeout(b *rod.Browser, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing engine")
		}
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("Engine close timed out")
	}
}
