// Package stats tracks per-host render statistics for the status endpoint.
package stats

import (
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxHosts caps the number of tracked hosts before LRU eviction.
const maxHosts = 10000

// evictionBatchSize is how many hosts are dropped per eviction pass.
const evictionBatchSize = 100

// HostStats accumulates render outcomes for a single host.
type HostStats struct {
	mu sync.RWMutex

	RenderCount  int64 `json:"renderCount"`
	SuccessCount int64 `json:"successCount"`
	FailureCount int64 `json:"failureCount"`
	TimeoutCount int64 `json:"timeoutCount"`

	totalDurationMs int64

	LastRenderTime  time.Time `json:"lastRenderTime,omitempty"`
	LastSuccessTime time.Time `json:"lastSuccessTime,omitempty"`
	lastAccess      time.Time
}

// HostStatsJSON is the serialisable snapshot of HostStats.
type HostStatsJSON struct {
	RenderCount     int64     `json:"renderCount"`
	SuccessCount    int64     `json:"successCount"`
	FailureCount    int64     `json:"failureCount"`
	TimeoutCount    int64     `json:"timeoutCount"`
	MeanDurationMs  int64     `json:"meanDurationMs"`
	LastRenderTime  time.Time `json:"lastRenderTime,omitempty"`
	LastSuccessTime time.Time `json:"lastSuccessTime,omitempty"`
}

func (s *HostStats) snapshot() HostStatsJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mean int64
	if s.RenderCount > 0 {
		mean = s.totalDurationMs / s.RenderCount
	}
	return HostStatsJSON{
		RenderCount:     s.RenderCount,
		SuccessCount:    s.SuccessCount,
		FailureCount:    s.FailureCount,
		TimeoutCount:    s.TimeoutCount,
		MeanDurationMs:  mean,
		LastRenderTime:  s.LastRenderTime,
		LastSuccessTime: s.LastSuccessTime,
	}
}

// Registry manages statistics for all hosts.
type Registry struct {
	mu    sync.RWMutex
	hosts map[string]*HostStats

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry creates a registry and starts its stale-entry cleanup loop.
func NewRegistry() *Registry {
	r := &Registry{
		hosts:  make(map[string]*HostStats),
		stopCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.cleanupLoop()
	return r
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanupStale(time.Hour)
		case <-r.stopCh:
			return
		}
	}
}

// cleanupStale drops hosts not rendered within maxAge.
func (r *Registry) cleanupStale(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var removed int
	for host, s := range r.hosts {
		s.mu.RLock()
		last := s.lastAccess
		s.mu.RUnlock()
		if now.Sub(last) > maxAge {
			delete(r.hosts, host)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().
			Int("removed", removed).
			Int("remaining", len(r.hosts)).
			Msg("Cleaned up stale host stats")
	}
}

// Close stops the cleanup loop.
func (r *Registry) Close() {
	close(r.stopCh)
	r.wg.Wait()
}

// HostOf extracts the tracking key (hostname) from a render URL.
func HostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func (r *Registry) getOrCreate(host string) *HostStats {
	r.mu.Lock()

	s, ok := r.hosts[host]
	if !ok {
		if len(r.hosts) >= maxHosts {
			r.evictOldestLocked(evictionBatchSize)
		}
		s = &HostStats{lastAccess: time.Now()}
		r.hosts[host] = s
		r.mu.Unlock()
		return s
	}
	r.mu.Unlock()

	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
	return s
}

// evictOldestLocked removes the count least recently rendered hosts.
// Caller holds r.mu.
func (r *Registry) evictOldestLocked(count int) {
	if count <= 0 || len(r.hosts) == 0 {
		return
	}
	if len(r.hosts) <= count {
		r.hosts = make(map[string]*HostStats)
		return
	}

	type hostTime struct {
		host string
		last time.Time
	}
	candidates := make([]hostTime, 0, len(r.hosts))
	for host, s := range r.hosts {
		s.mu.RLock()
		last := s.lastAccess
		s.mu.RUnlock()
		candidates = append(candidates, hostTime{host, last})
	}

	for i := 0; i < count && i < len(candidates); i++ {
		minIdx := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].last.Before(candidates[minIdx].last) {
				minIdx = j
			}
		}
		if minIdx != i {
			candidates[i], candidates[minIdx] = candidates[minIdx], candidates[i]
		}
		delete(r.hosts, candidates[i].host)
	}
}

// RecordRender updates the host's counters after a render completes.
// wasTimeout counts renders that exhausted their budget, including those
// salvaged by emergency extraction.
func (r *Registry) RecordRender(host string, duration time.Duration, success, wasTimeout bool) {
	if host == "" {
		return
	}

	s := r.getOrCreate(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.RenderCount++
	s.totalDurationMs += duration.Milliseconds()
	s.LastRenderTime = time.Now()
	s.lastAccess = s.LastRenderTime

	if success {
		s.SuccessCount++
		s.LastSuccessTime = s.LastRenderTime
	} else {
		s.FailureCount++
	}
	if wasTimeout {
		s.TimeoutCount++
	}
}

// Get returns the snapshot for a host, or false if the host is untracked.
func (r *Registry) Get(host string) (HostStatsJSON, bool) {
	r.mu.RLock()
	s, ok := r.hosts[host]
	r.mu.RUnlock()
	if !ok {
		return HostStatsJSON{}, false
	}
	return s.snapshot(), true
}

// All returns a snapshot of every tracked host.
func (r *Registry) All() map[string]HostStatsJSON {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HostStatsJSON, len(r.hosts))
	for host, s := range r.hosts {
		out[host] = s.snapshot()
	}
	return out
}

// HostCount returns the number of tracked hosts.
func (r *Registry) HostCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

// TotalRenders returns the total render count across all hosts.
func (r *Registry) TotalRenders() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, s := range r.hosts {
		s.mu.RLock()
		total += s.RenderCount
		s.mu.RUnlock()
	}
	return total
}
