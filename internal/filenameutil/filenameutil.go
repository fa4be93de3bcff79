// Package filenameutil suggests a destination file name from an HTTP
// probe response: Content-Disposition, URL query parameters, the URL
// path, and finally magic-byte sniffing. Adapted from the teacher's
// internal/utils.DetermineFilename.
package filenameutil

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
)

// Suggest returns a sanitized candidate file name for rawurl/resp. It
// never reads the response body — header is an optional byte sample
// (e.g. the first bytes already buffered by a caller) used only for
// magic-byte extension sniffing when nothing else yields an extension.
func Suggest(rawurl string, resp *http.Response, header []byte) string {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return "download.bin"
	}

	candidate := fromContentDisposition(resp)
	if candidate == "" {
		candidate = fromQuery(parsed)
	}
	if candidate == "" && parsed.Path != "/" {
		candidate = filepath.Base(parsed.Path)
	}

	name := sanitize(candidate)

	if filepath.Ext(name) == "" && len(header) > 0 {
		if kind, _ := filetype.Match(header); kind != filetype.Unknown && kind.Extension != "" {
			name = name + "." + kind.Extension
		}
	}

	if name == "" || name == "." || name == "/" {
		return "download.bin"
	}
	return name
}

func fromContentDisposition(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		return name
	}
	return ""
}

func fromQuery(u *url.URL) string {
	q := u.Query()
	if name := q.Get("filename"); name != "" {
		return name
	}
	if name := q.Get("file"); name != "" {
		return name
	}
	return ""
}

func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." {
		return name
	}
	if name == "/" {
		return "_"
	}
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer(
		"/", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return replacer.Replace(name)
}
