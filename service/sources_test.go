package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	scopeDir := filepath.Join(dir, "AAPL", "2024", "Q4")
	require.NoError(t, os.MkdirAll(scopeDir, 0o755))

	transcript := `{"ticker": "AAPL", "year": 2024, "quarter": 4, "segments": [{"speaker": "Tim Cook", "role": "CEO", "text": "Revenue grew 6%."}]}`
	require.NoError(t, os.WriteFile(filepath.Join(scopeDir, "transcript.json"), []byte(transcript), 0o644))

	filing := `{"ticker": "AAPL", "year": 2024, "quarter": 4, "source": "10-Q", "statements": [{"metric": "revenue", "value": 94930000000, "unit": "USD"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(scopeDir, "filing.json"), []byte(filing), 0o644))

	source := NewFileSource(dir)

	got, err := source.FetchTranscript(context.Background(), "AAPL", 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Ticker)
	require.Len(t, got.Segments, 1)

	doc, err := source.FetchFiling(context.Background(), "AAPL", 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, "10-Q", doc.Source)
	require.Len(t, doc.Statements, 1)
	assert.Equal(t, 94.93e9, doc.Statements[0].Value)
}

func TestFileSource_MissingPeriod(t *testing.T) {
	source := NewFileSource(t.TempDir())

	_, err := source.FetchFiling(context.Background(), "MSFT", 2024, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist), "absence should be detectable with errors.Is")
}

func TestFileSource_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	scopeDir := filepath.Join(dir, "AAPL", "2024", "Q1")
	require.NoError(t, os.MkdirAll(scopeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scopeDir, "transcript.json"), []byte("{not json"), 0o644))

	_, err := NewFileSource(dir).FetchTranscript(context.Background(), "AAPL", 2024, 1)
	assert.Error(t, err)
}
