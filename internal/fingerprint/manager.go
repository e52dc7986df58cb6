package fingerprint

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ReloadStats tracks pool reload activity, surfaced via /api/status.
type ReloadStats struct {
	LastReloadTime time.Time `json:"lastReloadTime,omitempty"`
	ReloadCount    int64     `json:"reloadCount"`
	LastError      error     `json:"-"`
	LastErrorStr   string    `json:"lastError,omitempty"`
}

// Manager provides hot-reload capable fingerprint pool management.
// It holds the embedded defaults and optionally watches an external YAML
// override. Reads are lock-free using atomic.Value.
type Manager struct {
	embedded     *Pools       // compiled-in defaults (immutable)
	current      atomic.Value // *Pools
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // protects reload operations
	stats        ReloadStats
	closed       bool
}

// NewManager creates a pool manager. With an empty externalPath only the
// embedded pools are used; otherwise the file is loaded at startup and
// watched for changes.
func NewManager(externalPath string) (*Manager, error) {
	m := &Manager{
		embedded:     Get(),
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}
	m.current.Store(m.embedded)

	if externalPath != "" {
		if err := m.loadExternal(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to load external fingerprint pools, using embedded defaults")
		} else {
			log.Info().
				Str("path", externalPath).
				Msg("Loaded external fingerprint pool file")
		}
		if err := m.startWatcher(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to start pool file watcher, hot-reload disabled")
		}
	}

	return m, nil
}

// Pools returns the current pool set. Lock-free, safe for concurrent use.
func (m *Manager) Pools() *Pools {
	return m.current.Load().(*Pools)
}

// Reload manually reloads pools from the external file.
// On failure the previous pools remain in use.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.externalPath == "" {
		return fmt.Errorf("no external fingerprint pool path configured")
	}
	return m.loadExternalLocked()
}

// Stats returns a snapshot of reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	if stats.LastError != nil {
		stats.LastErrorStr = stats.LastError.Error()
	}
	return stats
}

// Close stops the file watcher. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) loadExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadExternalLocked()
}

// loadExternalLocked must be called with m.mu held.
func (m *Manager) loadExternalLocked() error {
	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to read fingerprint pool file: %w", err)
	}

	pools, err := parseAndValidate(data)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to parse fingerprint pool file: %w", err)
	}

	m.current.Store(m.mergeWithEmbedded(pools))

	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.LastError = nil

	log.Info().
		Int64("reload_count", m.stats.ReloadCount).
		Msg("Fingerprint pools hot-reloaded")

	return nil
}

func parseAndValidate(data []byte) (*Pools, error) {
	var p Pools
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	// Partial override files are fine; merge fills the gaps. Only a file
	// with no usable pool at all is rejected.
	if len(p.UserAgents) == 0 && len(p.Locales) == 0 && len(p.WebGL) == 0 &&
		len(p.HardwareConcurrency) == 0 && len(p.DeviceMemoryGb) == 0 {
		return nil, fmt.Errorf("fingerprint pool file defines no pools")
	}
	return &p, nil
}

// mergeWithEmbedded overlays external pools on the embedded defaults.
// External entries take precedence; embedded fills missing pools.
func (m *Manager) mergeWithEmbedded(external *Pools) *Pools {
	merged := &Pools{
		UserAgents:          m.embedded.UserAgents,
		Locales:             m.embedded.Locales,
		WebGL:               m.embedded.WebGL,
		HardwareConcurrency: m.embedded.HardwareConcurrency,
		DeviceMemoryGb:      m.embedded.DeviceMemoryGb,
	}
	if len(external.UserAgents) > 0 {
		merged.UserAgents = external.UserAgents
	}
	if len(external.Locales) > 0 {
		merged.Locales = external.Locales
	}
	if len(external.WebGL) > 0 {
		merged.WebGL = external.WebGL
	}
	if len(external.HardwareConcurrency) > 0 {
		merged.HardwareConcurrency = external.HardwareConcurrency
	}
	if len(external.DeviceMemoryGb) > 0 {
		merged.DeviceMemoryGb = external.DeviceMemoryGb
	}
	return merged
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(m.externalPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file: %w", err)
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()

	return nil
}

// watchFile reloads on write/create events, debounced so editors that
// write in bursts trigger a single reload.
func (m *Manager) watchFile() {
	defer m.wg.Done()

	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer
	var debouncing bool

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Fingerprint pool file changed")

			if debouncing {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(debounceDelay)
			} else {
				debouncing = true
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.Reload(); err != nil {
						log.Warn().
							Err(err).
							Str("path", m.externalPath).
							Msg("Pool hot-reload failed, keeping previous pools")
					}
					debouncing = false
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Pool file watcher error")

		case <-m.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}
