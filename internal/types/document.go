package types

// SourceKind identifies where a document is fetched from.
type SourceKind string

const (
	SourceHTTP  SourceKind = "http"
	SourceDrive SourceKind = "drive"
	SourceGCS   SourceKind = "gcs"
	SourceLocal SourceKind = "local"
)

// DocumentDescriptor points at one document to process.
// Descriptors are produced by a listing and consumed once per batch.
type DocumentDescriptor struct {
	Name     string     `json:"name"`
	Location string     `json:"location"`
	Kind     SourceKind `json:"kind,omitempty"`
	Size     int64      `json:"size,omitempty"`
}
