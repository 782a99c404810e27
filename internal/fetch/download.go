package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/docmeta/internal/types"
)

const maxTempNameLen = 100

// Download copies the document to a new file in dir named
// "<uuid>-<sanitized name>" and returns its path. The name always ends in
// ".pdf" so locations without an extension still reach the extractor. The
// caller removes the file.
func (f *Fetcher) Download(ctx context.Context, d types.DocumentDescriptor, dir string) (string, error) {
	loc, err := f.classify(d.Location)
	if err != nil {
		return "", err
	}

	body, err := f.open(ctx, loc)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	name := d.Name
	if name == "" {
		name = "document.pdf"
	}
	dest := filepath.Join(dir, uuid.NewString()+"-"+pdfFileName(name))

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	n, copyErr := io.Copy(out, io.LimitReader(body, f.maxBytes+1))
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(dest)
		return "", &Error{URL: d.Location, Message: "download interrupted", Cause: copyErr}
	case closeErr != nil:
		_ = os.Remove(dest)
		return "", fmt.Errorf("failed to write temp file: %w", closeErr)
	case n > f.maxBytes:
		_ = os.Remove(dest)
		return "", &Error{URL: d.Location, Message: fmt.Sprintf("document larger than %d bytes", f.maxBytes)}
	}

	f.logger.Debug().Str("document", d.Name).Int64("bytes", n).Str("path", dest).Msg("downloaded document")
	return dest, nil
}

func (f *Fetcher) open(ctx context.Context, loc *location) (io.ReadCloser, error) {
	switch loc.kind {
	case types.SourceLocal:
		file, err := os.Open(loc.path)
		if err != nil {
			return nil, &Error{URL: loc.raw, Message: "cannot open file", Cause: err}
		}
		return file, nil

	case types.SourceGCS:
		if f.objects == nil {
			return nil, &Error{URL: loc.raw, Message: "cloud storage not configured"}
		}
		if loc.object == "" || strings.HasSuffix(loc.object, "/") {
			return nil, &Error{URL: loc.raw, Message: "location names a prefix, not an object"}
		}
		r, err := f.objects.OpenObject(ctx, loc.bucket, loc.object)
		if err != nil {
			return nil, &Error{URL: loc.raw, Message: "failed to open object", Cause: err}
		}
		return r, nil

	case types.SourceDrive:
		token, err := f.graphToken()
		if err != nil {
			return nil, &Error{URL: loc.raw, Message: "failed to obtain Graph token", Cause: err}
		}
		resp, err := f.get(ctx, loc.raw, token)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil

	default:
		resp, err := f.get(ctx, loc.raw, "")
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
}

// pdfFileName sanitizes name and appends ".pdf" when it lacks that extension.
func pdfFileName(name string) string {
	out := SanitizeFileName(name)
	if strings.EqualFold(filepath.Ext(out), ".pdf") {
		return out
	}
	if len(out)+len(".pdf") > maxTempNameLen {
		out = out[:maxTempNameLen-len(".pdf")]
	}
	return out + ".pdf"
}

// SanitizeFileName reduces name to characters safe in a file name.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := strings.Trim(sb.String(), "._")
	if out == "" {
		out = "document"
	}
	if len(out) > maxTempNameLen {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxTempNameLen-len(ext)] + ext
	}
	return out
}
