package scheduler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arjwright/dlctl/engine/dlerr"
	"github.com/arjwright/dlctl/engine/httpstrategy"
	"github.com/arjwright/dlctl/engine/logging"
	"github.com/arjwright/dlctl/engine/task"
	"github.com/arjwright/dlctl/engine/types"
)

func rangeServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
		from, to, ok := parseRange(rng, len(body))
		if !ok {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, to, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[from : to+1])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func parseRange(header string, total int) (from, to int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	parts := strings.SplitN(strings.TrimPrefix(header, prefix), "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	fromI, err1 := strconv.ParseInt(parts[0], 10, 64)
	toI, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || toI >= int64(total) {
		return 0, 0, false
	}
	return fromI, toI, true
}

func newRuntime() *types.RuntimeConfig {
	return &types.RuntimeConfig{
		MaxTaskRetries:   3,
		RetrySleep:       2 * time.Millisecond,
		ReadTimeout:      2 * time.Second,
		WorkerBufferSize: 16,
	}
}

func TestSchedulerRunsTasksUpToMaxParallel(t *testing.T) {
	body := strings.Repeat("x", 500)
	srv := rangeServer(t, []byte(body))
	strat := httpstrategy.New(newRuntime())

	done := make(chan struct{})

	var mu sync.Mutex
	maxRunning := 0

	sched := New(strat, newRuntime(), logging.Nop{}, Options{
		MaxParallelTasks: 2,
		OnQueueProgress: func(running, _, _, _ int) {
			mu.Lock()
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()
		},
		OnQueueComplete: func() {
			close(done)
		},
	})
	sched.Start(t.Context())

	const n = 5
	for i := 0; i < n; i++ {
		dir := t.TempDir()
		_, err := sched.Add(types.DownloadContext{URL: srv.URL + fmt.Sprintf("/f%d.bin", i), TargetPath: dir, MaxSegments: 2})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not complete all tasks in time")
	}

	snaps := sched.GetTasks()
	require.Len(t, snaps, n)
	for _, s := range snaps {
		require.Equal(t, task.StateCompleted, s.State)
	}

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, maxRunning, 2)
}

func TestSchedulerRejectsInvalidContext(t *testing.T) {
	strat := httpstrategy.New(newRuntime())
	sched := New(strat, newRuntime(), logging.Nop{}, Options{MaxParallelTasks: 1})

	_, err := sched.Add(types.DownloadContext{URL: "ftp://bad", TargetPath: t.TempDir(), MaxSegments: 1})
	require.Error(t, err)
}

func TestSchedulerCancelUnknownTaskReturnsError(t *testing.T) {
	strat := httpstrategy.New(newRuntime())
	sched := New(strat, newRuntime(), logging.Nop{}, Options{MaxParallelTasks: 1})

	err := sched.Cancel("does-not-exist")
	require.Error(t, err)
	require.True(t, dlerr.Is(err, dlerr.CodeUnknownTask))
}

func TestSchedulerStopCancelsRunningTasks(t *testing.T) {
	body := strings.Repeat("y", 4<<20)
	srv := rangeServer(t, []byte(body))
	strat := httpstrategy.New(newRuntime())

	sched := New(strat, newRuntime(), logging.Nop{}, Options{MaxParallelTasks: 1})
	sched.Start(t.Context())

	_, err := sched.Add(types.DownloadContext{URL: srv.URL + "/big.bin", TargetPath: t.TempDir(), MaxSegments: 2})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	sched.Stop()

	// allow the cancelled task's state transition to land
	require.Eventually(t, func() bool {
		snaps := sched.GetTasks()
		return len(snaps) == 1 && snaps[0].State == task.StateCancelled
	}, time.Second, 5*time.Millisecond)
}
