// Package httpstrategy is the HTTP implementation of engine/strategy
// (spec.md §4.2): HEAD-less probing via a ranged GET, ranged segment
// fetches, and context validation. Adapted from the teacher's
// internal/engine/probe.go and internal/engine/concurrent/worker.go.
package httpstrategy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arjwright/dlctl/engine/dlerr"
	"github.com/arjwright/dlctl/engine/ratelimit"
	"github.com/arjwright/dlctl/engine/strategy"
	"github.com/arjwright/dlctl/engine/types"
	"github.com/arjwright/dlctl/internal/filenameutil"
)

var _ strategy.Strategy = (*HTTPStrategy)(nil)

// HTTPStrategy implements strategy.Strategy over HTTP(S).
type HTTPStrategy struct {
	Runtime *types.RuntimeConfig
	client  *http.Client
	limits  *ratelimit.Manager
}

// New builds an HTTPStrategy with a client tuned for many concurrent
// ranged requests to the same host, mirroring the teacher's
// newConcurrentClient.
func New(runtime *types.RuntimeConfig) *HTTPStrategy {
	transport := &http.Transport{
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   64,
		MaxConnsPerHost:       64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &HTTPStrategy{
		Runtime: runtime,
		client:  &http.Client{Transport: transport},
		limits:  ratelimit.NewManager(),
	}
}

// ValidateContext checks the URL scheme, segment bounds, and that the
// target directory exists or can be created (spec.md §4.2).
func (s *HTTPStrategy) ValidateContext(dctx types.DownloadContext) error {
	u, err := url.Parse(dctx.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dlerr.New(dlerr.CodeInvalidURL, fmt.Sprintf("not an absolute http(s) URL: %q", dctx.URL))
	}
	if dctx.MaxSegments < types.MinSegments || dctx.MaxSegments > types.MaxSegments {
		return dlerr.New(dlerr.CodeArgumentOutOfRange,
			fmt.Sprintf("max_segments must be in [%d,%d], got %d", types.MinSegments, types.MaxSegments, dctx.MaxSegments))
	}
	if dctx.TargetPath == "" {
		return dlerr.New(dlerr.CodeTaskContextInvalid, "target_path is required")
	}

	dir := dctx.TargetPath
	if info, err := os.Stat(dctx.TargetPath); err == nil && !info.IsDir() {
		dir = parentDir(dctx.TargetPath)
	} else if err == nil && info.IsDir() {
		dir = dctx.TargetPath
	} else {
		dir = parentDir(dctx.TargetPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dlerr.Wrap(dlerr.CodePathNotFound, err, "target directory does not exist and could not be created")
	}
	return nil
}

func parentDir(p string) string {
	idx := strings.LastIndexByte(p, os.PathSeparator)
	if idx < 0 {
		return "."
	}
	return p[:idx]
}

// Probe issues a ranged GET for bytes=0-0 to learn the file size and
// range support without downloading the whole body, making up to 3
// attempts on transient connection failures (mirrors the teacher's probe
// retry).
func (s *HTTPStrategy) Probe(ctx context.Context, rawurl string) (result strategy.ProbeResult, err error) {
	var resp *http.Response
	probeTimeout := s.Runtime.GetProbeTimeout()

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Second)
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		req, reqErr := http.NewRequestWithContext(probeCtx, http.MethodGet, rawurl, nil)
		if reqErr != nil {
			cancel()
			return result, dlerr.Wrap(dlerr.CodeInvalidURL, reqErr, "building probe request")
		}
		req.Header.Set("Range", "bytes=0-0")
		req.Header.Set("User-Agent", s.Runtime.GetUserAgent())

		resp, err = s.client.Do(req)
		cancel()
		if err == nil {
			break
		}
	}
	if err != nil {
		return result, dlerr.Wrap(dlerr.CodeNetworkUnavailable, err, "probe request failed after retries")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.SupportsRange = true
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if idx := strings.LastIndex(cr, "/"); idx != -1 {
				sizeStr := cr[idx+1:]
				if sizeStr != "*" {
					result.FileSize, _ = strconv.ParseInt(sizeStr, 10, 64)
				}
			}
		}
	case http.StatusOK:
		result.SupportsRange = false
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			result.FileSize, _ = strconv.ParseInt(cl, 10, 64)
		}
	default:
		return result, dlerr.New(dlerr.CodeHTTPError, fmt.Sprintf("unexpected probe status: %d", resp.StatusCode))
	}

	header := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, header)
	result.SuggestedFilename = filenameutil.Suggest(rawurl, resp, header[:n])

	return result, nil
}

// OpenSegment issues a ranged GET for [from,to] and returns the response
// body as a byte stream. A 429 is transient: it records the rate-limiter's
// computed backoff for the host and returns a retryable error without
// reading any body, so the worker's existing retry budget handles it
// (SPEC_FULL.md §5). The next OpenSegment to that host waits out the
// backoff in limiter.Wait before sending its request.
func (s *HTTPStrategy) OpenSegment(ctx context.Context, rawurl string, from, to int64) (io.ReadCloser, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, dlerr.Wrap(dlerr.CodeInvalidURL, err, "parsing segment URL")
	}
	limiter := s.limits.For(u.Host)
	limiter.Wait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, dlerr.Wrap(dlerr.CodeInvalidURL, err, "building segment request")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", from, to))
	req.Header.Set("User-Agent", s.Runtime.GetUserAgent())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, dlerr.Wrap(dlerr.CodeNetworkUnavailable, err, "segment request failed")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		limiter.Handle429(resp)
		resp.Body.Close()
		return nil, dlerr.New(dlerr.CodeRateLimited, "rate limited (429)")
	}

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
			return nil, dlerr.New(dlerr.CodeRangeNotSatisfiable, fmt.Sprintf("range %d-%d not satisfiable", from, to))
		}
		return nil, dlerr.New(dlerr.CodeHTTPError, fmt.Sprintf("unexpected status: %d", resp.StatusCode))
	}

	limiter.ReportSuccess()
	return resp.Body, nil
}
