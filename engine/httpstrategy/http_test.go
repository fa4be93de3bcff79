package httpstrategy

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/arjwright/dlctl/engine/dlerr"
	"github.com/arjwright/dlctl/engine/types"
	"github.com/stretchr/testify/require"
)

func rangeServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
}

func TestProbeReadsContentRangeTotal(t *testing.T) {
	srv := rangeServer(t, []byte(strings.Repeat("x", 13)))
	defer srv.Close()

	s := New(nil)
	res, err := s.Probe(t.Context(), srv.URL)
	require.NoError(t, err)
	require.True(t, res.SupportsRange)
	require.Equal(t, int64(13), res.FileSize)
}

func TestProbe404IsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(nil)
	_, err := s.Probe(t.Context(), srv.URL)
	require.Error(t, err)
	require.True(t, dlerr.Is(err, dlerr.CodeHTTPError))
}

func TestOpenSegmentReturnsRequestedBytes(t *testing.T) {
	body := []byte("Hello, World!")
	srv := rangeServer(t, body)
	defer srv.Close()

	s := New(nil)
	rc, err := s.OpenSegment(t.Context(), srv.URL, 7, 12)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "World!", string(data))
}

func TestValidateContextRejectsBadURL(t *testing.T) {
	s := New(nil)
	err := s.ValidateContext(types.DownloadContext{URL: "ftp://example.com/f", MaxSegments: 1, TargetPath: t.TempDir()})
	require.Error(t, err)
	require.True(t, dlerr.Is(err, dlerr.CodeInvalidURL))
}

func TestValidateContextRejectsBadSegmentCount(t *testing.T) {
	s := New(nil)
	err := s.ValidateContext(types.DownloadContext{URL: "https://example.com/f", MaxSegments: 0, TargetPath: t.TempDir()})
	require.Error(t, err)
	require.True(t, dlerr.Is(err, dlerr.CodeArgumentOutOfRange))
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
