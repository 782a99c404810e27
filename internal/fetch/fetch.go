// Package fetch turns a user supplied location into PDF document descriptors
// and downloads those documents to local temp files.
package fetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is sent on every HTTP request.
const DefaultUserAgent = "Mozilla/5.0 (compatible; docmeta/1.0)"

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes int64 = 200 << 20

// DefaultGraphHost is the Microsoft Graph API host.
const DefaultGraphHost = "graph.microsoft.com"

// Error describes a failed listing or download.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Config configures a Fetcher. Zero values select defaults.
type Config struct {
	Timeout    time.Duration
	UserAgent  string
	MaxBytes   int64
	HTTPClient *http.Client

	// GraphHost identifies Graph drive URLs.
	GraphHost string
	// GraphTokens authorizes Graph requests. Nil disables drive sources.
	GraphTokens oauth2.TokenSource
	// Objects serves gs:// locations. Nil disables GCS sources.
	Objects ObjectStore

	Logger zerolog.Logger
}

// Fetcher lists and downloads documents from HTTP, Graph drive, GCS and local sources.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBytes    int64
	graphHost   string
	graphTokens oauth2.TokenSource
	objects     ObjectStore
	logger      zerolog.Logger
}

// New creates a Fetcher from cfg.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.GraphHost == "" {
		cfg.GraphHost = DefaultGraphHost
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Fetcher{
		client:      client,
		userAgent:   cfg.UserAgent,
		maxBytes:    cfg.MaxBytes,
		graphHost:   cfg.GraphHost,
		graphTokens: cfg.GraphTokens,
		objects:     cfg.Objects,
		logger:      cfg.Logger,
	}
}
