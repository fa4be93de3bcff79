package manager

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arjwright/dlctl/engine/httpstrategy"
	"github.com/arjwright/dlctl/engine/logging"
	"github.com/arjwright/dlctl/engine/planner"
	"github.com/arjwright/dlctl/engine/types"
	"github.com/arjwright/dlctl/engine/worker"
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

func buildWorkers(t *testing.T, body []byte, n int, srvURL string) (*Manager, []string) {
	t.Helper()
	runtime := &types.RuntimeConfig{MaxTaskRetries: 3, RetrySleep: 2 * time.Millisecond, ReadTimeout: 2 * time.Second, WorkerBufferSize: 8}
	strat := httpstrategy.New(runtime)

	ranges, err := planner.SplitRanges(int64(len(body)), n)
	require.NoError(t, err)
	paths, err := planner.SplitPaths(n, filepath.Join(t.TempDir(), "out.bin"))
	require.NoError(t, err)

	workers := make([]*worker.Worker, n)
	for i := range ranges {
		workers[i] = worker.New(i, ranges[i], paths[i], strat, runtime, logging.Nop{})
	}
	return New(workers), paths
}

func TestManagerCompletesAllWorkers(t *testing.T) {
	body := bytes.Repeat([]byte("0123456789"), 10) // 100 bytes
	srv := rangeServer(t, body)

	m, paths := buildWorkers(t, body, 4, srv.URL)
	outcome := m.Run(t.Context(), srv.URL, logging.Nop{})

	require.True(t, outcome.OK)
	require.NoError(t, outcome.Err)
	require.Equal(t, int32(4), m.CompletedWorkers())
	require.Equal(t, 100, m.Progress())
	require.Equal(t, int64(len(body)), m.CompletedBytes())

	for _, p := range paths {
		_, err := os.Stat(p)
		require.NoError(t, err)
	}
}

func TestManagerPropagatesWorkerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	body := bytes.Repeat([]byte{'z'}, 40)
	m, _ := buildWorkers(t, body, 2, srv.URL)
	outcome := m.Run(t.Context(), srv.URL, logging.Nop{})

	require.False(t, outcome.OK)
	require.Error(t, outcome.Err)
}

func TestManagerTempPathsMatchWorkerCount(t *testing.T) {
	body := bytes.Repeat([]byte{'a'}, 16)
	srv := rangeServer(t, body)
	m, paths := buildWorkers(t, body, 3, srv.URL)
	require.Equal(t, paths, m.TempPaths())
}
