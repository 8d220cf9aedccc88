package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"claimverifier-backend/models"
)

// TranscriptSource supplies earnings-call transcripts for a scope. Real
// transcript connectors live outside this module; this is the seam they plug
// into.
type TranscriptSource interface {
	FetchTranscript(ctx context.Context, ticker string, year, quarter int) (*models.Transcript, error)
}

// FilingSource supplies filing documents for a scope. A missing period
// surfaces as an error wrapping os.ErrNotExist so callers can treat it as
// absence rather than failure.
type FilingSource interface {
	FetchFiling(ctx context.Context, ticker string, year, quarter int) (*models.FilingDocument, error)
}

// FileSource reads documents from a directory laid out as
// <root>/<TICKER>/<year>/Q<quarter>/{transcript,filing}.json.
type FileSource struct {
	root string
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{root: dir}
}

func (s *FileSource) scopePath(ticker string, year, quarter int, name string) string {
	return filepath.Join(s.root, ticker, fmt.Sprintf("%d", year), fmt.Sprintf("Q%d", quarter), name)
}

// FetchTranscript reads transcript.json for the scope.
func (s *FileSource) FetchTranscript(ctx context.Context, ticker string, year, quarter int) (*models.Transcript, error) {
	var transcript models.Transcript
	if err := s.readJSON(s.scopePath(ticker, year, quarter, "transcript.json"), &transcript); err != nil {
		return nil, err
	}
	return &transcript, nil
}

// FetchFiling reads filing.json for the scope.
func (s *FileSource) FetchFiling(ctx context.Context, ticker string, year, quarter int) (*models.FilingDocument, error) {
	var doc models.FilingDocument
	if err := s.readJSON(s.scopePath(ticker, year, quarter, "filing.json"), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *FileSource) readJSON(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
