// Package worker implements the Download Thread / Segment Worker
// (spec.md §4.4): owns one segment, streams it into a temp file,
// honors cooperative cancellation, and retries transient read failures.
// Adapted from the teacher's internal/engine/concurrent/worker.go,
// with the work-stealing/dynamic-resize logic removed — spec.md's
// invariant that a Task's thread_count is fixed at context.max_segments
// forbids it.
package worker

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/arjwright/dlctl/engine/dlerr"
	"github.com/arjwright/dlctl/engine/logging"
	"github.com/arjwright/dlctl/engine/strategy"
	"github.com/arjwright/dlctl/engine/types"
)

// Progress sentinels (spec.md §4.4).
const (
	ProgressCancelled int32 = -1
	ProgressComplete  int32 = 100
)

// Worker owns one segment: it opens the input stream via the Strategy,
// creates its temp output file, and streams bytes across while
// reporting progress and honoring cancellation.
type Worker struct {
	ID       int
	Range    types.SegmentRange
	TempPath string

	completedBytes atomic.Int64
	progress       atomic.Int32
	cancelled      atomic.Bool
	pausing        atomic.Bool
	resumeOffset   atomic.Int64 // absolute offset the next Run starts from; New sets Range.From

	strat   strategy.Strategy
	runtime *types.RuntimeConfig
	log     logging.Logger
}

// New builds a Worker for one planned segment.
func New(id int, rng types.SegmentRange, tempPath string, strat strategy.Strategy, runtime *types.RuntimeConfig, log logging.Logger) *Worker {
	if log == nil {
		log = logging.Nop{}
	}
	w := &Worker{ID: id, Range: rng, TempPath: tempPath, strat: strat, runtime: runtime, log: log}
	w.progress.Store(0)
	w.resumeOffset.Store(rng.From)
	return w
}

// SetResumeOffset reopens this worker's temp file at an existing offset
// instead of truncating it, used when a paused Task resumes: Task.Resume
// rebuilds a Worker per spec.md §4.6 with the same range and temp path, and
// calls SetResumeOffset(from+completed_bytes) before Run.
func (w *Worker) SetResumeOffset(offset int64) {
	if offset < w.Range.From {
		offset = w.Range.From
	}
	if offset > w.Range.To+1 {
		offset = w.Range.To + 1
	}
	w.resumeOffset.Store(offset)
	w.completedBytes.Store(offset - w.Range.From)
}

// CompletedBytes returns the number of bytes written so far (atomic read).
func (w *Worker) CompletedBytes() int64 { return w.completedBytes.Load() }

// Progress returns -1 (cancelled), 0..99 (in progress), or 100 (complete).
func (w *Worker) Progress() int32 { return w.progress.Load() }

// Cancel requests cooperative cancellation; the worker observes it at
// its next read/write check, within one buffer cycle. The temp file and
// any bytes written so far are discarded.
func (w *Worker) Cancel() { w.cancelled.Store(true) }

// Pause requests the same cooperative stop as Cancel, but preserves the
// temp file and its completed_bytes so a later SetResumeOffset + Run can
// continue the segment (spec.md §4.6, §9: Pause/Resume).
func (w *Worker) Pause() {
	w.pausing.Store(true)
	w.cancelled.Store(true)
}

// Run executes the worker's full lifecycle: open, stream, retry-on-
// transient-failure, and report the terminal outcome via onDone(ok, err).
// Run blocks until the segment is fully downloaded, cancelled, or fails
// permanently; it never panics out — any internal panic is recovered and
// reported as CodeUnexpectedOrUnknownException.
func (w *Worker) Run(ctx context.Context, url string, onDone func(workerID int, ok bool, err error)) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker panic recovered", "worker_id", w.ID, "panic", r)
			onDone(w.ID, false, dlerr.New(dlerr.CodeUnexpectedOrUnknownException, "worker panic"))
		}
	}()

	ok, err := w.run(ctx, url)
	onDone(w.ID, ok, err)
}

func (w *Worker) run(ctx context.Context, url string) (bool, error) {
	resumeFrom := w.resumeOffset.Load()

	if resumeFrom > w.Range.To {
		// segment was already fully written before a Pause caught up with it.
		w.progress.Store(ProgressComplete)
		return true, nil
	}

	openFlags := os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	if resumeFrom > w.Range.From {
		openFlags = os.O_WRONLY // resuming: keep bytes already on disk
	}
	out, err := os.OpenFile(w.TempPath, openFlags, 0o644)
	if err != nil {
		return false, dlerr.Wrap(dlerr.CodeOutputStreamUnavailable, err, "creating segment temp file")
	}
	defer out.Close()

	maxRetries := w.runtime.GetMaxTaskRetries()
	retrySleep := w.runtime.GetRetrySleep()
	readTimeout := w.runtime.GetReadTimeout()
	bufSize := w.runtime.GetWorkerBufferSize()

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			w.log.Debug("retrying segment", "worker_id", w.ID, "attempt", attempt)
			select {
			case <-time.After(retrySleep):
			case <-ctx.Done():
				return w.handleCancel(out)
			}
		}

		if w.cancelled.Load() || ctx.Err() != nil {
			return w.handleCancel(out)
		}

		var done bool
		done, resumeFrom, lastErr = w.attempt(ctx, url, out, resumeFrom, readTimeout, bufSize)
		if lastErr == nil {
			if done {
				w.progress.Store(ProgressComplete)
				return true, nil
			}
			// attempt() only returns (false, nil) on cooperative cancel.
			return w.handleCancel(out)
		}
		if dlerr.Is(lastErr, dlerr.CodeRangeNotSatisfiable) || dlerr.Is(lastErr, dlerr.CodeHTTPError) {
			// fatal per spec.md §7: HTTP 4xx/5xx (and an unsatisfiable
			// range) propagate immediately. Only CodeRateLimited (429) is
			// a retryable status -- the backoff Handle429 recorded is
			// waited out by the next attempt's OpenSegment.
			break
		}
	}

	w.progress.Store(ProgressCancelled)
	_ = out.Close()
	_ = os.Remove(w.TempPath)
	return false, lastErr
}

func (w *Worker) handleCancel(out *os.File) (bool, error) {
	_ = out.Close()
	if w.pausing.Load() {
		// keep the temp file and completedBytes: a later SetResumeOffset
		// picks up from exactly where this attempt left off.
		return false, nil
	}
	w.progress.Store(ProgressCancelled)
	_ = os.Remove(w.TempPath)
	return false, nil
}

// attempt streams the segment starting at resumeOffset. It returns
// (true, _, nil) on full completion, (false, _, nil) on cooperative
// cancellation, or (false, offsetReached, err) on a transient/permanent
// failure so the caller can resume from where it left off.
func (w *Worker) attempt(ctx context.Context, url string, out *os.File, resumeOffset int64, readTimeout time.Duration, bufSize int64) (bool, int64, error) {
	readCtx, cancel := context.WithTimeout(ctx, readTimeout*time.Duration(timeoutMultiplier(w.Range.To-resumeOffset+1, bufSize)))
	defer cancel()

	body, err := w.strat.OpenSegment(readCtx, url, resumeOffset, w.Range.To)
	if err != nil {
		return false, resumeOffset, err
	}
	defer body.Close()

	buf := make([]byte, bufSize)
	offset := resumeOffset

	for {
		if w.cancelled.Load() || ctx.Err() != nil {
			return false, offset, nil
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if w.cancelled.Load() || ctx.Err() != nil {
				return false, offset, nil
			}
			if _, werr := out.WriteAt(buf[:n], offset-w.Range.From); werr != nil {
				return false, offset, dlerr.Wrap(dlerr.CodeDiskOperationFailed, werr, "writing segment bytes")
			}
			offset += int64(n)
			w.completedBytes.Store(offset - w.Range.From)
			w.progress.Store(int32(w.completedBytes.Load() * 100 / w.Range.Length()))
		}

		if readErr == io.EOF {
			if offset-1 == w.Range.To {
				return true, offset, nil
			}
			// server closed early: treat as transient, retry from here.
			return false, offset, dlerr.New(dlerr.CodeTimeout, "stream ended before range was fully read")
		}
		if readErr != nil {
			return false, offset, dlerr.Wrap(dlerr.CodeTimeout, readErr, "segment read failed")
		}
	}
}

// timeoutMultiplier scales the per-attempt deadline by how many buffer
// cycles a segment could plausibly need, with a floor of 1, so large
// segments aren't starved by a single fixed per-attempt timeout meant
// for one read.
func timeoutMultiplier(remaining, bufSize int64) int64 {
	if bufSize <= 0 {
		return 1
	}
	m := remaining / bufSize
	if m < 1 {
		return 1
	}
	return m
}
