package clipboard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractURLAcceptsHTTPS(t *testing.T) {
	v := NewValidator()
	require.Equal(t, "https://example.com/file.zip", v.ExtractURL("  https://example.com/file.zip  "))
}

func TestExtractURLRejectsNonHTTP(t *testing.T) {
	v := NewValidator()
	require.Equal(t, "", v.ExtractURL("ftp://example.com/file.zip"))
	require.Equal(t, "", v.ExtractURL("not a url at all"))
}

func TestExtractURLRejectsMultiline(t *testing.T) {
	v := NewValidator()
	require.Equal(t, "", v.ExtractURL("https://example.com/a\nhttps://example.com/b"))
}

func TestExtractURLRejectsOverlong(t *testing.T) {
	v := NewValidator()
	long := "https://example.com/" + string(make([]byte, 3000))
	require.Equal(t, "", v.ExtractURL(long))
}
