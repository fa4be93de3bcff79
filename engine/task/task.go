// Package task implements the Download Task state machine (spec.md §4.6):
// Waiting -> Downloading -> AfterProcessing -> Completed/Failed, with
// Downloading -> Cancelled and a Paused state that Resume re-enters into
// Downloading.
//
// Grounded on internal/download/manager.go's TUIDownload start procedure
// (probe -> destPath resolution via uniqueFilePath -> build workers -> run
// -> completed/error event) and internal/download/types/progress.go's
// ProgressState, whose atomic Paused/Done/CancelFunc fields inform this
// package's state fields.
package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/arjwright/dlctl/engine/dlerr"
	"github.com/arjwright/dlctl/engine/logging"
	"github.com/arjwright/dlctl/engine/manager"
	"github.com/arjwright/dlctl/engine/planner"
	"github.com/arjwright/dlctl/engine/speed"
	"github.com/arjwright/dlctl/engine/strategy"
	"github.com/arjwright/dlctl/engine/types"
	"github.com/arjwright/dlctl/engine/worker"
)

// State is a node in the Download Task state machine.
type State int

const (
	StateWaiting State = iota
	StateDownloading
	StatePaused
	StateAfterProcessing
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "Waiting"
	case StateDownloading:
		return "Downloading"
	case StatePaused:
		return "Paused"
	case StateAfterProcessing:
		return "AfterProcessing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Options configures the event callbacks a Task fires.
type Options struct {
	OnStateChanged func(*Task)
	OnCompleted    func(*Task)
}

// Option sets one Options field.
type Option func(*Options)

// WithOnStateChanged fires on every state transition (once per state),
// per spec.md §4.6.
func WithOnStateChanged(fn func(*Task)) Option {
	return func(o *Options) { o.OnStateChanged = fn }
}

// WithOnCompleted fires once, only when the task reaches Completed.
func WithOnCompleted(fn func(*Task)) Option {
	return func(o *Options) { o.OnCompleted = fn }
}

// Snapshot is a read-only view of a Task's current progress, safe to read
// without holding the Task's lock.
type Snapshot struct {
	ID                string
	State             State
	URL               string
	DestPath          string
	EffectiveSegments int
	CompletedBytes    int64
	TotalBytes        int64
	Progress          int
	Speed             speed.Sample
	Err               error
}

// Task owns one download end to end: probing, planning, running its
// Manager, and assembling the result.
type Task struct {
	ID      string
	Context types.DownloadContext

	strat   strategy.Strategy
	runtime *types.RuntimeConfig
	log     logging.Logger
	opts    Options

	mu          sync.Mutex
	state       State
	destPath    string
	effSegments int
	totalBytes  int64
	err         error
	mgr         *manager.Manager
	monitor     *speed.Monitor
	cancel      context.CancelFunc
	baseCtx     context.Context
	stopReason  string // "", "pause", or "cancel" -- set just before stopping workers
	lastSample  speed.Sample
}

// New builds a Task in the Waiting state. It does not start downloading.
func New(id string, dctx types.DownloadContext, strat strategy.Strategy, runtime *types.RuntimeConfig, log logging.Logger, opts ...Option) *Task {
	if log == nil {
		log = logging.Nop{}
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return &Task{ID: id, Context: dctx, strat: strat, runtime: runtime, log: log, opts: o, state: StateWaiting}
}

// State returns the current state under lock.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot returns a consistent point-in-time view of progress.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := Snapshot{
		ID:                t.ID,
		State:             t.state,
		URL:               t.Context.URL,
		DestPath:          t.destPath,
		EffectiveSegments: t.effSegments,
		TotalBytes:        t.totalBytes,
		Err:               t.err,
		Speed:             t.lastSample,
	}
	if t.mgr != nil {
		snap.CompletedBytes = t.mgr.CompletedBytes()
		snap.Progress = t.mgr.Progress()
	} else if t.state == StateCompleted {
		snap.CompletedBytes = t.totalBytes
		snap.Progress = 100
	}
	return snap
}

// Start runs the probe-and-plan steps synchronously, then launches the
// Manager in the background and returns. Errors from probing or planning
// are returned directly and also recorded as a Failed transition; once
// workers are running, failures surface only through events/Snapshot.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateWaiting {
		t.mu.Unlock()
		return dlerr.New(dlerr.CodeTaskAlreadyStarted, "task already started")
	}
	t.mu.Unlock()

	probe, err := t.strat.Probe(ctx, t.Context.URL)
	if err != nil {
		t.fail(err)
		return err
	}
	if probe.FileSize <= 0 {
		err := dlerr.New(dlerr.CodeTaskContextInvalid, "server reported a zero-length or unknown content size")
		t.fail(err)
		return err
	}

	n := t.Context.MaxSegments
	if n <= 0 {
		n = 1
	}
	if !probe.SupportsRange {
		n = 1 // Open Question resolution: no range support falls back to a single stream
	}

	ranges, err := planner.SplitRanges(probe.FileSize, n)
	if err != nil {
		t.fail(err)
		return err
	}

	destPath, err := t.resolveDestPath(probe.SuggestedFilename)
	if err != nil {
		t.fail(err)
		return err
	}
	destPath = uniquePath(destPath)

	paths, err := planner.SplitPaths(len(ranges), destPath)
	if err != nil {
		t.fail(err)
		return err
	}

	workers := make([]*worker.Worker, len(ranges))
	for i := range ranges {
		workers[i] = worker.New(i, ranges[i], paths[i], t.strat, t.runtime, t.log)
	}
	mgr := manager.New(workers)

	f, ferr := os.Create(destPath)
	if ferr != nil {
		err := dlerr.Wrap(dlerr.CodeOutputStreamUnavailable, ferr, "creating final file")
		t.fail(err)
		return err
	}
	f.Close()

	runCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.mgr = mgr
	t.destPath = destPath
	t.effSegments = len(ranges)
	t.totalBytes = probe.FileSize
	t.cancel = cancel
	t.baseCtx = ctx
	t.mu.Unlock()

	t.setState(StateDownloading)
	t.startMonitor(mgr)

	go t.runWorkers(runCtx, mgr)
	return nil
}

// Pause cooperatively stops every worker while preserving their temp
// files and completed_bytes, so a later Resume can pick up where it left
// off (spec.md §4.6, §9).
func (t *Task) Pause() error {
	t.mu.Lock()
	if t.state != StateDownloading {
		t.mu.Unlock()
		return dlerr.New(dlerr.CodeTaskContextInvalid, "task is not downloading")
	}
	t.stopReason = "pause"
	mgr := t.mgr
	t.mu.Unlock()

	mgr.Pause()
	return nil
}

// Resume rebuilds a Manager from the paused workers' last known
// completed_bytes and restarts downloading.
func (t *Task) Resume() error {
	t.mu.Lock()
	if t.state != StatePaused {
		t.mu.Unlock()
		return dlerr.New(dlerr.CodeTaskContextInvalid, "task is not paused")
	}
	oldMgr := t.mgr
	baseCtx := t.baseCtx
	t.mu.Unlock()

	oldWorkers := oldMgr.Workers()
	newWorkers := make([]*worker.Worker, len(oldWorkers))
	for i, ow := range oldWorkers {
		nw := worker.New(ow.ID, ow.Range, ow.TempPath, t.strat, t.runtime, t.log)
		nw.SetResumeOffset(ow.Range.From + ow.CompletedBytes())
		newWorkers[i] = nw
	}
	mgr := manager.New(newWorkers)

	runCtx, cancel := context.WithCancel(baseCtx)
	t.mu.Lock()
	t.mgr = mgr
	t.cancel = cancel
	t.mu.Unlock()

	t.setState(StateDownloading)
	t.startMonitor(mgr)

	go t.runWorkers(runCtx, mgr)
	return nil
}

// Cancel stops the task. Cancelling an already-terminal task is a no-op
// that reports CodeTaskAlreadyTerminal, per spec.md §5's idempotence rule.
func (t *Task) Cancel() error {
	t.mu.Lock()
	switch t.state {
	case StateCompleted, StateFailed, StateCancelled:
		t.mu.Unlock()
		return dlerr.New(dlerr.CodeTaskAlreadyTerminal, "task is already terminal")
	case StateWaiting:
		t.mu.Unlock()
		t.setState(StateCancelled)
		return nil
	case StatePaused:
		mgr := t.mgr
		destPath := t.destPath
		t.mu.Unlock()
		if mgr != nil {
			for _, p := range mgr.TempPaths() {
				_ = os.Remove(p)
			}
		}
		_ = os.Remove(destPath)
		t.setState(StateCancelled)
		return nil
	}
	t.stopReason = "cancel"
	mgr := t.mgr
	cancel := t.cancel
	t.mu.Unlock()

	if mgr != nil {
		mgr.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (t *Task) startMonitor(mgr *manager.Manager) {
	t.monitor = speed.New(t.runtime.GetSpeedSampleEvery(), t.runtime.GetMinSampleInterval(), t.onSample)
	t.monitor.Start(mgr.CompletedBytes)
}

func (t *Task) onSample(s speed.Sample) {
	t.mu.Lock()
	t.lastSample = s
	t.mu.Unlock()
}

func (t *Task) runWorkers(ctx context.Context, mgr *manager.Manager) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("task panic recovered", "task_id", t.ID, "panic", r)
			if !t.State().Terminal() {
				t.fail(dlerr.New(dlerr.CodeUnexpectedOrUnknownException, "task panic"))
			}
		}
	}()

	outcome := mgr.Run(ctx, t.Context.URL, t.log)
	if t.monitor != nil {
		t.monitor.Stop()
	}

	t.mu.Lock()
	reason := t.stopReason
	t.stopReason = ""
	destPath := t.destPath
	t.mu.Unlock()

	// A genuine worker error always wins, even if a pause/cancel was also
	// in flight. Otherwise a requested stop (pause/cancel) takes priority
	// over outcome.OK, since a cooperative stop with no error also reports
	// OK: true -- it is the requested reason, not the error-free return,
	// that says whether every worker actually reached the end of its range.
	switch {
	case outcome.Err != nil:
		t.mu.Lock()
		t.err = outcome.Err
		t.mu.Unlock()
		for _, p := range mgr.TempPaths() {
			_ = os.Remove(p)
		}
		_ = os.Remove(destPath)
		t.setState(StateFailed)
	case reason == "pause":
		t.setState(StatePaused)
	case reason == "cancel":
		for _, p := range mgr.TempPaths() {
			_ = os.Remove(p)
		}
		_ = os.Remove(destPath)
		t.setState(StateCancelled)
	case outcome.OK:
		t.setState(StateAfterProcessing)
		if err := planner.Combine(mgr.TempPaths(), destPath); err != nil {
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
			t.setState(StateFailed)
			return
		}
		t.setState(StateCompleted)
		if t.opts.OnCompleted != nil {
			t.opts.OnCompleted(t)
		}
	default:
		for _, p := range mgr.TempPaths() {
			_ = os.Remove(p)
		}
		_ = os.Remove(destPath)
		t.setState(StateCancelled)
	}
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.setState(StateFailed)
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	if t.opts.OnStateChanged != nil {
		t.opts.OnStateChanged(t)
	}
}

func (t *Task) resolveDestPath(suggested string) (string, error) {
	target := t.Context.TargetPath
	info, err := os.Stat(target)
	if err == nil {
		if info.IsDir() {
			name := suggested
			if name == "" {
				name = "download.bin"
			}
			return filepath.Join(target, name), nil
		}
		return target, nil
	}
	if !os.IsNotExist(err) {
		return "", dlerr.Wrap(dlerr.CodePathNotFound, err, "stat target path")
	}
	if mkErr := os.MkdirAll(filepath.Dir(target), 0o755); mkErr != nil {
		return "", dlerr.Wrap(dlerr.CodePathNotFound, mkErr, "creating target directory")
	}
	return target, nil
}

// uniquePath appends " (k)" before the extension, with k increasing,
// until it finds a path that is free (and whose incomplete-suffix variant
// is also free). Adapted from internal/download/manager.go's
// uniqueFilePath.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := os.Stat(path + types.IncompleteSuffix); os.IsNotExist(err) {
			return path
		}
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)

	base := name
	counter := 1
	if len(name) > 3 && name[len(name)-1] == ')' {
		if openParen := strings.LastIndexByte(name, '('); openParen != -1 {
			if num, err := strconv.Atoi(name[openParen+1 : len(name)-1]); err == nil && num > 0 {
				base = name[:openParen]
				counter = num + 1
			}
		}
	}

	for i := 0; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, counter+i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			if _, err := os.Stat(candidate + types.IncompleteSuffix); os.IsNotExist(err) {
				return candidate
			}
		}
	}
	return path
}
