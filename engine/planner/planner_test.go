package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRangesExactDivision(t *testing.T) {
	ranges, err := SplitRanges(100, 4)
	require.NoError(t, err)
	require.Len(t, ranges, 4)
	require.Equal(t, int64(0), ranges[0].From)
	require.Equal(t, int64(24), ranges[0].To)
	require.Equal(t, int64(99), ranges[3].To)

	var total int64
	for _, r := range ranges {
		total += r.Length()
	}
	require.Equal(t, int64(100), total)
}

func TestSplitRangesRemainderAbsorbedByLast(t *testing.T) {
	ranges, err := SplitRanges(10, 3) // base=3, remainder=1
	require.NoError(t, err)
	require.Equal(t, int64(3), ranges[0].Length())
	require.Equal(t, int64(3), ranges[1].Length())
	require.Equal(t, int64(4), ranges[2].Length()) // 10 - 3 - 3

	var total int64
	for _, r := range ranges {
		total += r.Length()
	}
	require.Equal(t, int64(10), total)
}

func TestSplitRangesClampsWhenFileSmallerThanN(t *testing.T) {
	ranges, err := SplitRanges(1, 4)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	require.Equal(t, int64(0), ranges[0].From)
	require.Equal(t, int64(0), ranges[0].To)
}

func TestSplitRangesRejectsZero(t *testing.T) {
	_, err := SplitRanges(0, 4)
	require.Error(t, err)

	_, err = SplitRanges(10, 0)
	require.Error(t, err)
}

func TestSplitPathsNaming(t *testing.T) {
	paths, err := SplitPaths(3, filepath.Join("/tmp", "movie.mp4"))
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join("/tmp", "movie-0.downtemp"),
		filepath.Join("/tmp", "movie-1.downtemp"),
		filepath.Join("/tmp", "movie-2.downtemp"),
	}, paths)
}

func TestSplitPathsRejectsEmptyName(t *testing.T) {
	_, err := SplitPaths(2, "/tmp/")
	require.Error(t, err)
}

func TestCombineSingleSegmentRenames(t *testing.T) {
	dir := t.TempDir()
	finalPath := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(finalPath, nil, 0o644)) // pre-created empty

	segPath := filepath.Join(dir, "out-0.downtemp")
	require.NoError(t, os.WriteFile(segPath, []byte("hello world"), 0o644))

	require.NoError(t, Combine([]string{segPath}, finalPath))

	data, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
	_, err = os.Stat(segPath)
	require.True(t, os.IsNotExist(err))
}

func TestCombineMultiSegmentOrdersByIndex(t *testing.T) {
	dir := t.TempDir()
	finalPath := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(finalPath, nil, 0o644))

	seg0 := filepath.Join(dir, "out-0.downtemp")
	seg1 := filepath.Join(dir, "out-1.downtemp")
	require.NoError(t, os.WriteFile(seg0, []byte("Hello, "), 0o644))
	require.NoError(t, os.WriteFile(seg1, []byte("World!"), 0o644))

	require.NoError(t, Combine([]string{seg0, seg1}, finalPath))

	data, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	require.Equal(t, "Hello, World!", string(data))

	for _, p := range []string{seg0, seg1} {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err))
	}
}

func TestCombineDeletesTempsEvenOnFailure(t *testing.T) {
	dir := t.TempDir()
	finalPath := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(finalPath, nil, 0o644))

	seg0 := filepath.Join(dir, "out-0.downtemp")
	missingSeg := filepath.Join(dir, "out-1.downtemp") // never created
	require.NoError(t, os.WriteFile(seg0, []byte("partial"), 0o644))

	err := Combine([]string{seg0, missingSeg}, finalPath)
	require.Error(t, err)

	_, statErr := os.Stat(seg0)
	require.True(t, os.IsNotExist(statErr), "temp must be cleaned up even on failure")
}

func TestSplitRangesRoundTripLaw(t *testing.T) {
	for _, fileSize := range []int64{1, 2, 13, 100, 1023, 4096, 9999} {
		for n := 1; n <= 32; n++ {
			ranges, err := SplitRanges(fileSize, n)
			require.NoError(t, err)

			var total int64
			prevTo := int64(-1)
			for _, r := range ranges {
				require.Equal(t, prevTo+1, r.From, "ranges must be contiguous")
				total += r.Length()
				prevTo = r.To
			}
			require.Equal(t, fileSize, total, "size=%d n=%d", fileSize, n)
			require.Equal(t, fileSize-1, ranges[len(ranges)-1].To)
		}
	}
}
