package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jonathan/docmeta/internal/types"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Name string
	Size int64
}

// ObjectStore is the subset of a bucket store the fetcher needs.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	OpenObject(ctx context.Context, bucket, name string) (io.ReadCloser, error)
}

// GCSStore serves gs:// locations from Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a storage client with application default credentials
// unless opts say otherwise.
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// ListObjects returns every object under prefix.
func (s *GCSStore) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectInfo{Name: attrs.Name, Size: attrs.Size})
	}
	return out, nil
}

// OpenObject opens an object for reading.
func (s *GCSStore) OpenObject(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	return s.client.Bucket(bucket).Object(name).NewReader(ctx)
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (f *Fetcher) listGCS(ctx context.Context, bucket, prefix string) ([]types.DocumentDescriptor, error) {
	loc := "gs://" + bucket + "/" + prefix
	if f.objects == nil {
		return nil, &Error{URL: loc, Message: "cloud storage not configured"}
	}

	objects, err := f.objects.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, &Error{URL: loc, Message: "failed to list objects", Cause: err}
	}

	var docs []types.DocumentDescriptor
	for _, obj := range objects {
		if !isPDF(obj.Name) {
			continue
		}
		docs = append(docs, types.DocumentDescriptor{
			Name:     baseName(obj.Name),
			Location: "gs://" + bucket + "/" + obj.Name,
			Kind:     types.SourceGCS,
			Size:     obj.Size,
		})
	}
	return docs, nil
}

func baseName(object string) string {
	return path.Base(object)
}
