// Package planner implements the Segment Planner (spec.md §4.1): pure
// functions to split a file into byte ranges and temp-file paths, and to
// stream-concatenate the temp files back into the final file.
package planner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arjwright/dlctl/engine/dlerr"
	"github.com/arjwright/dlctl/engine/types"
)

// CombineBufferSize is the read/write chunk size used by Combine. Kept at
// 1 KiB per spec.md §4.1's stated rationale; SPEC_FULL.md §6 leaves a
// larger buffer as a documented, unexercised knob rather than silently
// changing the shipped behavior.
var CombineBufferSize = 1024

// SplitRanges computes n contiguous, non-overlapping byte ranges covering
// [0, fileSize). If n > fileSize, n is clamped down to fileSize (SPEC_FULL.md
// §6's chosen policy for the file_size<n boundary) so no degenerate empty
// range is ever produced.
func SplitRanges(fileSize int64, n int) ([]types.SegmentRange, error) {
	if fileSize <= 0 {
		return nil, dlerr.New(dlerr.CodeTaskContextInvalid, "file_size must be > 0")
	}
	if n <= 0 {
		return nil, dlerr.New(dlerr.CodeArgumentOutOfRange, "segment count must be > 0")
	}
	if int64(n) > fileSize {
		n = int(fileSize)
	}

	base := fileSize / int64(n)
	ranges := make([]types.SegmentRange, n)
	offset := int64(0)
	for i := 0; i < n; i++ {
		from := offset
		to := from + base - 1
		if i == n-1 {
			to = fileSize - 1 // last segment absorbs the remainder
		}
		ranges[i] = types.SegmentRange{Index: i, From: from, To: to}
		offset = to + 1
	}
	return ranges, nil
}

// SplitPaths returns n temp-segment paths alongside finalPath, named
// "<dir>/<stem>-<i>.downtemp" per the spec Glossary.
func SplitPaths(n int, finalPath string) ([]string, error) {
	if n <= 0 {
		return nil, dlerr.New(dlerr.CodeArgumentOutOfRange, "segment count must be > 0")
	}
	base := filepath.Base(finalPath)
	if base == "" || base == "." || base == string(filepath.Separator) ||
		strings.HasSuffix(finalPath, string(filepath.Separator)) {
		return nil, dlerr.New(dlerr.CodeTaskContextInvalid, "target path has no file name component")
	}
	dir := filepath.Dir(finalPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	paths := make([]string, n)
	for i := 0; i < n; i++ {
		paths[i] = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, types.IncompleteSuffix))
	}
	return paths, nil
}

// Combine assembles segmentPaths, in ascending index order, into finalPath
// and deletes every temp file. finalPath must already exist (created empty
// by the Task per spec.md §4.6 step 4) — Combine opens it for writing.
//
// When there is exactly one segment, Combine renames the temp directly onto
// finalPath instead of streaming through it, after removing the pre-created
// (empty) final file.
//
// On any failure, every temp file is still attempted-deleted before the
// error is returned.
func Combine(segmentPaths []string, finalPath string) error {
	if len(segmentPaths) == 0 {
		return dlerr.New(dlerr.CodeOutputStreamCountMismatch, "no segment paths to combine")
	}

	if len(segmentPaths) == 1 {
		// The final file was pre-created empty; drop it so the rename can
		// take its place.
		if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
			cleanup(segmentPaths)
			return dlerr.Wrap(dlerr.CodeDiskOperationFailed, err, "removing placeholder final file")
		}
		if err := os.Rename(segmentPaths[0], finalPath); err != nil {
			cleanup(segmentPaths)
			return dlerr.Wrap(dlerr.CodeDiskOperationFailed, err, "renaming single segment onto final path")
		}
		return nil
	}

	out, err := os.OpenFile(finalPath, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		cleanup(segmentPaths)
		return dlerr.Wrap(dlerr.CodeOutputStreamUnavailable, err, "opening final file for assembly")
	}
	defer out.Close()

	buf := make([]byte, CombineBufferSize)
	var combineErr error
	for _, segPath := range segmentPaths {
		if combineErr = appendSegment(out, segPath, buf); combineErr != nil {
			break
		}
	}

	cleanup(segmentPaths)
	if combineErr != nil {
		return dlerr.Wrap(dlerr.CodeDiskOperationFailed, combineErr, "assembling segments")
	}
	return out.Sync()
}

func appendSegment(out *os.File, segPath string, buf []byte) error {
	in, err := os.Open(segPath)
	if err != nil {
		return fmt.Errorf("opening segment %s: %w", segPath, err)
	}
	defer in.Close()

	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return fmt.Errorf("copying segment %s: %w", segPath, err)
	}
	return nil
}

func cleanup(segmentPaths []string) {
	for _, p := range segmentPaths {
		_ = os.Remove(p)
	}
}
