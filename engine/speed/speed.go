// Package speed implements the Speed Monitor (spec.md §4.3): a 1 Hz
// sampler over a caller-supplied "bytes so far" function, emitting a
// formatted byte rate to an observer callback.
package speed

import (
	"sync"
	"time"
)

// Sample is what Monitor emits on each tick.
type Sample struct {
	BytesPerSecond float64
	Formatted      string
}

// Observer receives a Sample. Emission is best-effort: a slow observer
// must not delay the ticker, so Monitor invokes it in its own goroutine
// rather than blocking the sampling loop on it.
type Observer func(Sample)

// Monitor periodically samples a "bytes so far" function and emits a
// formatted rate to an Observer.
type Monitor struct {
	interval    time.Duration
	minInterval time.Duration
	observer    Observer

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Monitor. interval is the tick rate (spec.md: 1 Hz);
// minInterval is the "dt < minInterval emits 0" guard (spec.md: 500 ms).
func New(interval, minInterval time.Duration, observer Observer) *Monitor {
	return &Monitor{interval: interval, minInterval: minInterval, observer: observer}
}

// Start begins sampling getBytesSoFar at the configured interval. It is
// a no-op if already running.
func (m *Monitor) Start(getBytesSoFar func() int64) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(getBytesSoFar)
}

func (m *Monitor) loop(getBytesSoFar func() int64) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	lastTick := time.Now()
	lastBytes := getBytesSoFar()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			current := getBytesSoFar()
			dt := now.Sub(lastTick)

			var sample Sample
			if dt < m.minInterval {
				sample = Sample{BytesPerSecond: 0, Formatted: "0 B/s"}
			} else {
				rate := float64(current-lastBytes) / dt.Seconds()
				if rate < 0 {
					rate = 0
				}
				formatted, _ := FormatRate(rate) // rate is clamped to >=0 above, never errors
				sample = Sample{BytesPerSecond: rate, Formatted: formatted}
				lastTick = now
				lastBytes = current
			}

			if m.observer != nil {
				go m.observer(sample)
			}
		}
	}
}

// Stop halts the ticker. It is safe to call multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.running = false
}

// Dispose tears down the Monitor's resources; equivalent to Stop for
// this implementation, kept as a distinct name to match spec.md §4.3's
// contract (start/stop/dispose).
func (m *Monitor) Dispose() {
	m.Stop()
}
