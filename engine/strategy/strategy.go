// Package strategy declares the Protocol Strategy capability set
// (spec.md §4.2): probe, open a segment's byte stream, and validate a
// download context before it is queued. httpstrategy is the only
// implementation shipped; the interface is the seam spec.md §9 calls
// out for a future non-HTTP protocol.
package strategy

import (
	"context"
	"io"

	"github.com/arjwright/dlctl/engine/types"
)

// ProbeResult carries everything learned from probing the remote file.
type ProbeResult struct {
	FileSize          int64
	SupportsRange     bool
	SuggestedFilename string
}

// Strategy is the capability set a download protocol must provide.
type Strategy interface {
	// Probe determines the file size and range support for url.
	Probe(ctx context.Context, url string) (ProbeResult, error)

	// OpenSegment opens a byte stream covering the inclusive range
	// [from, to] of url.
	OpenSegment(ctx context.Context, url string, from, to int64) (io.ReadCloser, error)

	// ValidateContext checks a DownloadContext is well-formed for this
	// protocol before it is queued (spec.md §4.2).
	ValidateContext(dctx types.DownloadContext) error
}
