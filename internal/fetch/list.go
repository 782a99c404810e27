package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/jonathan/docmeta/internal/types"
)

// List expands location into the documents to process.
//
//   - Graph folder URL (".../drive/root:/<folder>"): every PDF child, following paging.
//   - gs://bucket/prefix/ : every PDF object under the prefix.
//   - local directory: every PDF below it, hidden entries skipped.
//   - HTTP URL serving HTML: every linked PDF, resolved and de-duplicated.
//   - anything else: a single descriptor.
func (f *Fetcher) List(ctx context.Context, raw string) ([]types.DocumentDescriptor, error) {
	loc, err := f.classify(raw)
	if err != nil {
		return nil, err
	}

	var docs []types.DocumentDescriptor
	switch loc.kind {
	case types.SourceDrive:
		if loc.folder {
			docs, err = f.listGraphFolder(ctx, loc.raw)
		} else {
			docs = []types.DocumentDescriptor{{Name: driveItemName(loc.url), Location: loc.raw, Kind: types.SourceDrive}}
		}
	case types.SourceGCS:
		if loc.object == "" || strings.HasSuffix(loc.object, "/") {
			docs, err = f.listGCS(ctx, loc.bucket, loc.object)
		} else {
			docs = []types.DocumentDescriptor{{Name: baseName(loc.object), Location: loc.raw, Kind: types.SourceGCS}}
		}
	case types.SourceLocal:
		docs, err = listLocal(loc.path)
	default:
		docs, err = f.listHTTP(ctx, loc)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Debug().Str("location", raw).Str("kind", string(loc.kind)).Int("documents", len(docs)).Msg("listed documents")
	return docs, nil
}

// listHTTP treats a .pdf URL as a document and anything else as a possible
// index page.
func (f *Fetcher) listHTTP(ctx context.Context, loc *location) ([]types.DocumentDescriptor, error) {
	single := []types.DocumentDescriptor{{Name: nameFromURL(loc.url), Location: loc.raw, Kind: types.SourceHTTP}}
	if isPDF(loc.url.Path) {
		return single, nil
	}

	resp, err := f.get(ctx, loc.raw, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		return single, nil
	}

	links, err := PDFLinks(io.LimitReader(resp.Body, f.maxBytes), loc.url)
	if err != nil {
		return nil, &Error{URL: loc.raw, Message: "failed to parse HTML", Cause: err}
	}
	if len(links) == 0 {
		return nil, &Error{URL: loc.raw, Message: "no PDF links found"}
	}

	docs := make([]types.DocumentDescriptor, 0, len(links))
	for _, link := range links {
		docs = append(docs, types.DocumentDescriptor{Name: nameFromURL(link), Location: link.String(), Kind: types.SourceHTTP})
	}
	return docs, nil
}

// get issues a GET and fails on any non-2xx status. A non-empty bearer is
// sent as the Authorization header.
func (f *Fetcher) get(ctx context.Context, rawURL, bearer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "HTTP request failed", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &Error{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	return resp, nil
}
