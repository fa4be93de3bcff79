// Package scheduler implements the Task Scheduler (spec.md §4.7): a FIFO
// queue of Download Tasks with a single allocator actor bounded by
// max_parallel_tasks.
//
// Grounded on internal/download/pool.go's WorkerPool (task channel, a
// downloads map for active work, Pause/Resume/Cancel/GetStatus by ID) and
// internal/engine/concurrent/task_queue.go's wake-on-signal idiom --
// adapted from that file's sync.Cond to a buffered channel, since the
// allocator here is a single dedicated actor rather than N pool workers
// racing on one sync.Cond.
package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/arjwright/dlctl/engine/dlerr"
	"github.com/arjwright/dlctl/engine/logging"
	"github.com/arjwright/dlctl/engine/strategy"
	"github.com/arjwright/dlctl/engine/task"
	"github.com/arjwright/dlctl/engine/types"
)

// Handle is the caller-facing reference to a queued or running Task.
type Handle struct {
	ID string
}

// Options configures scheduler-wide behavior.
type Options struct {
	MaxParallelTasks int
	OnQueueProgress  func(running, waiting, completed, total int)
	OnQueueComplete  func()
}

// Scheduler runs a FIFO queue of tasks, bounded by MaxParallelTasks, via
// a single allocator goroutine woken by a buffered signal channel rather
// than a condition variable.
type Scheduler struct {
	strat   strategy.Strategy
	runtime *types.RuntimeConfig
	log     logging.Logger
	opts    Options

	mu        sync.Mutex
	tasks     map[string]*task.Task
	queue     []string // FIFO of waiting task IDs
	running   map[string]struct{}
	completed int
	total     int

	signal  chan struct{}
	stopCh  chan struct{}
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a Scheduler. It does not start the allocator until Start is called.
func New(strat strategy.Strategy, runtime *types.RuntimeConfig, log logging.Logger, opts Options) *Scheduler {
	if log == nil {
		log = logging.Nop{}
	}
	if opts.MaxParallelTasks <= 0 {
		opts.MaxParallelTasks = 3
	}
	return &Scheduler{
		strat:   strat,
		runtime: runtime,
		log:     log,
		opts:    opts,
		tasks:   make(map[string]*task.Task),
		running: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start spawns the allocator goroutine if it is not already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	go s.allocatorLoop()
}

// Stop signals the allocator to shut down and cancels every task it knows
// of, queued-but-not-started ones included; Cancel's error on tasks that
// are already terminal is ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	tasks := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		_ = t.Cancel()
	}
}

// Add validates ctx, enqueues a new Task, wakes the allocator, and
// returns a Handle. The task ID is minted with uuid, mirroring the
// teacher's state.URLHash/ID generation for downloads.
func (s *Scheduler) Add(dctx types.DownloadContext) (Handle, error) {
	if dctx.URL == "" {
		return Handle{}, dlerr.New(dlerr.CodeTaskContextInvalid, "context has no URL")
	}
	if err := s.strat.ValidateContext(dctx); err != nil {
		return Handle{}, err
	}

	id := uuid.NewString()
	t := task.New(id, dctx, s.strat, s.runtime, s.log,
		task.WithOnStateChanged(func(tk *task.Task) { s.onTaskStateChanged(id, tk) }),
	)

	s.mu.Lock()
	if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		return Handle{}, dlerr.New(dlerr.CodeTaskAlreadyExists, "task ID collision")
	}
	s.tasks[id] = t
	s.queue = append(s.queue, id)
	s.total++
	s.mu.Unlock()

	s.wake()
	return Handle{ID: id}, nil
}

// Pause delegates to the named Task.
func (s *Scheduler) Pause(id string) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	return t.Pause()
}

// Resume delegates to the named Task.
func (s *Scheduler) Resume(id string) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	return t.Resume()
}

// Cancel delegates to the named Task.
func (s *Scheduler) Cancel(id string) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}
	return t.Cancel()
}

// GetTasks returns a snapshot of every task currently known to the
// scheduler. The order of the returned snapshots is not defined.
func (s *Scheduler) GetTasks() []task.Snapshot {
	return s.GetTasksWhere(nil)
}

// GetTasksWhere returns a filtered snapshot view; predicate == nil means "all".
func (s *Scheduler) GetTasksWhere(predicate func(task.Snapshot) bool) []task.Snapshot {
	s.mu.Lock()
	tasks := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]task.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snap := t.Snapshot()
		if predicate == nil || predicate(snap) {
			out = append(out, snap)
		}
	}
	return out
}

func (s *Scheduler) get(id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, dlerr.New(dlerr.CodeUnknownTask, "no task with that ID")
	}
	return t, nil
}

func (s *Scheduler) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// allocatorLoop is the single dedicated actor: it wakes on a signal and,
// while running < max and a waiting task exists, pops the queue head and
// starts it. It goes back to waiting for a signal once every slot is taken
// or the queue is empty, first firing OnQueueComplete if nothing is running
// or queued and every added task has completed.
func (s *Scheduler) allocatorLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ctx.Done():
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			if len(s.running) >= s.opts.MaxParallelTasks || len(s.queue) == 0 {
				allDone := len(s.running) == 0 && len(s.queue) == 0 && s.completed == s.total && s.total > 0
				s.mu.Unlock()
				if allDone && s.opts.OnQueueComplete != nil {
					s.opts.OnQueueComplete()
				}
				break
			}
			id := s.queue[0]
			s.queue = s.queue[1:]
			t := s.tasks[id]
			s.running[id] = struct{}{}
			s.mu.Unlock()

			s.reportProgress()
			if err := t.Start(s.ctx); err != nil {
				s.log.Error("task failed to start", "task_id", id, "err", err)
			}
		}
	}
}

func (s *Scheduler) onTaskStateChanged(id string, t *task.Task) {
	if !t.State().Terminal() {
		return
	}
	s.mu.Lock()
	if _, wasRunning := s.running[id]; wasRunning {
		delete(s.running, id)
		s.completed++
	}
	s.mu.Unlock()
	s.reportProgress()
	s.wake() // a terminal transition frees capacity; re-check the queue
}

func (s *Scheduler) reportProgress() {
	if s.opts.OnQueueProgress == nil {
		return
	}
	s.mu.Lock()
	running, waiting, completed, total := len(s.running), len(s.queue), s.completed, s.total
	s.mu.Unlock()
	s.opts.OnQueueProgress(running, waiting, completed, total)
}
