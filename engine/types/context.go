package types

// DownloadContext is the immutable input to a Download Task (spec.md §3).
type DownloadContext struct {
	// URL is the absolute http(s) URL of the remote file.
	URL string
	// TargetPath is either a full destination file path, or an existing
	// directory, in which case the Task derives a file name from the probe.
	TargetPath string
	// MaxSegments is the requested segment count, 1..=255. The Task may
	// clamp this down (never up) based on probed file size or range
	// support; the effective count is reported on the Task snapshot.
	MaxSegments int
	// ExpectedSize is an optional caller-supplied size hint; the Task
	// always re-probes and uses the server's Content-Length as the
	// source of truth.
	ExpectedSize int64
}

// SegmentRange is a contiguous, inclusive byte range assigned to one
// worker (spec.md Glossary: "Segment").
type SegmentRange struct {
	Index int
	From  int64
	To    int64 // inclusive
}

// Length returns the number of bytes in the range.
func (r SegmentRange) Length() int64 {
	return r.To - r.From + 1
}
