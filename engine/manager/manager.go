// Package manager implements the Thread Manager (spec.md §4.5): it owns
// the fixed set of workers planned for one task, starts them concurrently,
// tracks how many have finished, and fires a single "all complete" signal
// once every worker has reported a terminal outcome.
//
// Grounded on the teacher's ConcurrentDownloader.Download, which fans out
// over a sync.WaitGroup and a workerErrors channel, and on its
// activeTasks map + activeMu bookkeeping style for tracking per-worker state.
package manager

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arjwright/dlctl/engine/logging"
	"github.com/arjwright/dlctl/engine/worker"
)

// Outcome is the terminal result of one task's full set of workers.
type Outcome struct {
	OK             bool
	FailedWorkerID int
	Err            error
}

// Manager owns the workers for a single task's segment plan and reports
// their combined completion exactly once.
type Manager struct {
	workers []*worker.Worker

	mu            sync.Mutex
	completed     atomic.Int32
	firstErr      error
	failedWorker  int
	cancelWorkers func()
}

// New builds a Manager for the given workers. Workers are not started
// until Run is called.
func New(workers []*worker.Worker) *Manager {
	return &Manager{
		workers:      workers,
		failedWorker: -1,
	}
}

// CompletedBytes sums every worker's bytes-written-so-far; the Task uses
// this to drive its own Speed Monitor sample.
func (m *Manager) CompletedBytes() int64 {
	var total int64
	for _, w := range m.workers {
		total += w.CompletedBytes()
	}
	return total
}

// CompletedWorkers returns how many workers have reported a terminal
// outcome (success or failure) so far.
func (m *Manager) CompletedWorkers() int32 { return m.completed.Load() }

// Progress returns the overall percentage across all workers, 0..100.
func (m *Manager) Progress() int {
	if len(m.workers) == 0 {
		return 100
	}
	var sum int64
	for _, w := range m.workers {
		p := w.Progress()
		if p < 0 {
			continue // cancelled worker contributes nothing, not a negative skew
		}
		sum += int64(p)
	}
	return int(sum / int64(len(m.workers)))
}

// Run starts every worker concurrently against url and blocks until all
// have reported a terminal outcome, returning the combined Outcome. It
// is safe to call Run exactly once per Manager.
func (m *Manager) Run(ctx context.Context, url string, log logging.Logger) Outcome {
	if log == nil {
		log = logging.Nop{}
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancelWorkers = cancel
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range m.workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			w.Run(runCtx, url, m.onWorkerDone)
		}(w)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	return Outcome{OK: m.firstErr == nil, FailedWorkerID: m.failedWorker, Err: m.firstErr}
}

// Cancel requests cooperative cancellation of every worker. Safe to call
// before or during Run.
func (m *Manager) Cancel() {
	for _, w := range m.workers {
		w.Cancel()
	}
	if m.cancelWorkers != nil {
		m.cancelWorkers()
	}
}

// Pause requests every worker to stop while preserving its temp file and
// completed_bytes, so the Task can rebuild a Manager for the same workers
// and resume each one from where it left off (spec.md §4.6: Pause/Resume).
func (m *Manager) Pause() {
	for _, w := range m.workers {
		w.Pause()
	}
	if m.cancelWorkers != nil {
		m.cancelWorkers()
	}
}

// Workers exposes the underlying Worker handles so the Task can read each
// one's CompletedBytes when rebuilding a Manager to resume a paused task.
func (m *Manager) Workers() []*worker.Worker {
	return m.workers
}

// TempPaths returns the temp file path each worker writes to, in segment
// order, for the Task to hand to the Segment Planner's Combine step.
func (m *Manager) TempPaths() []string {
	paths := make([]string, len(m.workers))
	for i, w := range m.workers {
		paths[i] = w.TempPath
	}
	return paths
}

func (m *Manager) onWorkerDone(workerID int, ok bool, err error) {
	m.completed.Add(1)
	if !ok && err != nil {
		m.mu.Lock()
		if m.firstErr == nil {
			m.firstErr = err
			m.failedWorker = workerID
		}
		m.mu.Unlock()
		// A permanent failure in one worker means the segment plan can
		// never combine cleanly; stop the rest rather than let them run
		// to completion for nothing.
		m.Cancel()
	}
}
