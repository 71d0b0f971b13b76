package lim

import (
	"linkdump/svc/util"
	"sync"
	"time"
)

const (
	maxWindowClients    = 10000
	windowSweepInterval = 5 * time.Minute
)

// WriteWindow bounds write frequency per client identity with a sliding
// window of recent admission timestamps. Check-and-record is one atomic
// unit under the mutex; nothing blocks on I/O while it is held.
type WriteWindow struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	clients map[string][]time.Time
	quit    chan struct{}
}

type AdmitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

func NewWriteWindow(limit int, window time.Duration) *WriteWindow {
	w := &WriteWindow{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		quit:    make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Admit purges timestamps older than the trailing window, then admits and
// records iff fewer than limit remain.
func (w *WriteWindow) Admit(clientID string, now time.Time) AdmitResult {
	cutoff := now.Add(-w.window)
	w.mu.Lock()
	defer w.mu.Unlock()

	recent := w.clients[clientID][:0]
	for _, ts := range w.clients[clientID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) == 0 && len(w.clients) >= maxWindowClients {
		// Fail closed for new identities when the map is saturated.
		util.Warn().Int("clients", len(w.clients)).Msg("write window at capacity, rejecting")
		delete(w.clients, clientID)
		return AdmitResult{Allowed: false, Limit: w.limit, Reset: now.Add(w.window)}
	}

	if len(recent) >= w.limit {
		w.clients[clientID] = recent
		return AdmitResult{
			Allowed: false,
			Limit:   w.limit,
			Reset:   recent[0].Add(w.window),
		}
	}

	recent = append(recent, now)
	w.clients[clientID] = recent
	return AdmitResult{
		Allowed:   true,
		Limit:     w.limit,
		Remaining: w.limit - len(recent),
		Reset:     recent[0].Add(w.window),
	}
}

func (w *WriteWindow) sweepLoop() {
	ticker := time.NewTicker(windowSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.sweep(time.Now())
		case <-w.quit:
			return
		}
	}
}

// sweep drops identities whose entire window has aged out, so abandoned
// clients do not pin map entries forever.
func (w *WriteWindow) sweep(now time.Time) {
	cutoff := now.Add(-w.window)
	w.mu.Lock()
	evicted := 0
	for id, stamps := range w.clients {
		stale := true
		for _, ts := range stamps {
			if ts.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(w.clients, id)
			evicted++
		}
	}
	remaining := len(w.clients)
	w.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("write window sweep")
	}
}

func (w *WriteWindow) Stop() {
	close(w.quit)
}
