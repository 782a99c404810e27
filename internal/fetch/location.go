package fetch

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/jonathan/docmeta/internal/types"
)

type location struct {
	raw  string
	kind types.SourceKind
	url  *url.URL // http, drive
	// local
	path string
	// gcs
	bucket, object string
	// drive: true when raw names a folder to list
	folder bool
}

func (f *Fetcher) classify(raw string) (*location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &Error{URL: raw, Message: "location is empty"}
	}

	if strings.HasPrefix(raw, "gs://") {
		rest := strings.TrimPrefix(raw, "gs://")
		bucket, object, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, &Error{URL: raw, Message: "missing bucket name"}
		}
		return &location{raw: raw, kind: types.SourceGCS, bucket: bucket, object: object}, nil
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, &Error{URL: raw, Message: "invalid URL", Cause: err}
		}
		if strings.EqualFold(u.Host, f.graphHost) {
			return &location{raw: raw, kind: types.SourceDrive, url: u, folder: strings.Contains(raw, "/drive/root:")}, nil
		}
		return &location{raw: raw, kind: types.SourceHTTP, url: u}, nil
	}

	p := strings.TrimPrefix(raw, "file://")
	return &location{raw: raw, kind: types.SourceLocal, path: filepath.Clean(p)}, nil
}

// nameFromURL returns the unescaped last path segment of u.
func nameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return u.Host
	}
	return name
}

func isPDF(name string) bool {
	return strings.EqualFold(path.Ext(name), ".pdf")
}
