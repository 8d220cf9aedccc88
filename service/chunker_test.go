package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortTextStaysWhole(t *testing.T) {
	chunks := NewChunker(100).Split("Revenue grew 8% year over year.")
	require.Len(t, chunks, 1)
}

func TestChunker_Empty(t *testing.T) {
	assert.Empty(t, NewChunker(100).Split("   "))
}

func TestChunker_RespectsBudgetAndSentences(t *testing.T) {
	text := strings.Repeat("Revenue grew again this quarter. ", 20)
	chunks := NewChunker(100).Split(text)

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100)
		assert.True(t, strings.HasSuffix(chunk, "."), "chunk should end on a sentence boundary: %q", chunk)
	}
}

func TestChunker_ForceSplitsOversizedSentence(t *testing.T) {
	long := strings.Repeat("word ", 60) // one "sentence", no terminal punctuation
	chunks := NewChunker(80).Split(long)

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 80)
	}
}

func TestChunker_NothingLost(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	chunks := NewChunker(45).Split(text)

	joined := strings.Join(chunks, " ")
	for _, want := range []string{"First sentence", "Second sentence", "Third sentence"} {
		assert.Contains(t, joined, want)
	}
}
