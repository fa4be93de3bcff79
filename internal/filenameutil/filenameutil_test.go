package filenameutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuggestFromContentDisposition(t *testing.T) {
	resp := &http.Response{Header: http.Header{
		"Content-Disposition": []string{`attachment; filename="report.pdf"`},
	}}
	require.Equal(t, "report.pdf", Suggest("https://example.com/download?id=1", resp, nil))
}

func TestSuggestFromURLPath(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	require.Equal(t, "movie.mp4", Suggest("https://example.com/files/movie.mp4", resp, nil))
}

func TestSuggestFallsBackToDefault(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	require.Equal(t, "download.bin", Suggest("https://example.com/", resp, nil))
}

func TestSuggestSanitizesPathSeparators(t *testing.T) {
	resp := &http.Response{Header: http.Header{
		"Content-Disposition": []string{`attachment; filename="../../etc/passwd"`},
	}}
	name := Suggest("https://example.com/x", resp, nil)
	require.NotContains(t, name, "/")
	require.NotContains(t, name, "..")
}
