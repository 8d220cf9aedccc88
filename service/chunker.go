package service

import "strings"

// Chunker splits filing section text into indexable pieces that stay under a
// character budget without breaking sentences apart.
type Chunker struct {
	maxChars int
}

// NewChunker creates a chunker with the given character budget per chunk.
func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = 1800
	}
	return &Chunker{maxChars: maxChars}
}

// Split breaks text into chunks of at most maxChars, packing whole sentences
// greedily. A single sentence longer than the budget is force-split on word
// boundaries rather than dropped.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.maxChars {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	for _, sentence := range SplitSentences(text) {
		if len(sentence) > c.maxChars {
			flush()
			chunks = append(chunks, c.forceSplit(sentence)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > c.maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	flush()

	return chunks
}

// forceSplit handles the rare sentence that alone exceeds the budget,
// breaking on word boundaries.
func (c *Chunker) forceSplit(sentence string) []string {
	words := strings.Fields(sentence)
	var chunks []string
	var cur strings.Builder

	for _, word := range words {
		if cur.Len() > 0 && cur.Len()+1+len(word) > c.maxChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}

	return chunks
}
