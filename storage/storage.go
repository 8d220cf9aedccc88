package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Archive persists the raw source documents that were ingested, so a verdict
// can always be traced back to the exact transcript or filing it was built
// from. Keys are derived from the document scope, never user input.
type Archive interface {
	// Put stores a raw document and returns the archive key.
	Put(ctx context.Context, key ArchiveKey, data io.Reader) (string, error)

	// Get retrieves a previously archived document.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes an archived document.
	Delete(ctx context.Context, path string) error
}

// DocumentKind classifies what an archived document is.
type DocumentKind string

const (
	KindTranscript DocumentKind = "transcript"
	KindFiling     DocumentKind = "filing"
)

// ArchiveKey identifies one source document by scope.
type ArchiveKey struct {
	Ticker  string
	Year    int
	Quarter int
	Kind    DocumentKind
	Source  string // "10-Q", "10-K", "earnings-call"
}

// Path renders the key as the canonical archive layout, e.g.
// AAPL/2024/Q4/filing_10-Q.json. Re-archiving the same document overwrites
// in place rather than accumulating copies.
func (k ArchiveKey) Path() string {
	source := strings.ReplaceAll(k.Source, "/", "_")
	source = strings.ReplaceAll(source, " ", "_")
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("%s/%d/Q%d/%s_%s.json",
		strings.ToUpper(k.Ticker), k.Year, k.Quarter, k.Kind, source)
}

// Validate rejects keys that would produce a malformed path.
func (k ArchiveKey) Validate() error {
	if k.Ticker == "" {
		return errors.New("archive key requires a ticker")
	}
	if k.Year < 1900 || k.Quarter < 1 || k.Quarter > 4 {
		return fmt.Errorf("archive key has invalid period %d Q%d", k.Year, k.Quarter)
	}
	if k.Kind != KindTranscript && k.Kind != KindFiling {
		return fmt.Errorf("unknown document kind %q", k.Kind)
	}
	return nil
}

// ArchiveType represents the archive backend type
type ArchiveType string

const (
	ArchiveTypeLocal ArchiveType = "local"
	ArchiveTypeS3    ArchiveType = "s3"
)

// Config holds configuration for the archive backend.
type Config struct {
	Type         ArchiveType
	LocalPath    string // for local archive
	S3Bucket     string // for S3 archive
	S3Region     string // for S3 archive
	AWSAccessKey string
	AWSSecretKey string
}

// NewArchive creates an archive instance based on configuration.
func NewArchive(cfg Config) (Archive, error) {
	switch cfg.Type {
	case ArchiveTypeLocal:
		return NewLocalArchive(cfg.LocalPath)
	case ArchiveTypeS3:
		return NewS3Archive(cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
