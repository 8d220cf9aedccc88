package service

import (
	"math"
	"strings"
	"unicode"

	"claimverifier-backend/models"
)

// Vectorize builds the sparse representation of a text: lowercase word
// tokens weighted by 1+log(tf), L2-normalized. Scoring two such vectors with
// CosineSparse is then a plain dot product.
func Vectorize(text string) models.SparseVector {
	counts := make(map[string]int)
	for _, token := range tokenize(text) {
		counts[token]++
	}
	if len(counts) == 0 {
		return models.SparseVector{}
	}

	vec := make(models.SparseVector, len(counts))
	var norm float64
	for term, tf := range counts {
		w := 1 + math.Log(float64(tf))
		vec[term] = w
		norm += w * w
	}

	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

// CosineSparse returns the cosine similarity of two normalized sparse
// vectors. Iterates the smaller map.
func CosineSparse(a, b models.SparseVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for term, wa := range a {
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	return dot
}

// stopwords are dropped from sparse vectors. Directional words ("up",
// "down", "over") stay: they carry signal for growth claims.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "our": true, "that": true, "the": true, "this": true,
	"to": true, "was": true, "we": true, "were": true, "with": true,
}

// tokenize lowercases and splits on non-alphanumeric runes, keeping numbers
// (including decimals) whole so "94.8" survives as one retrieval token.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		tok := cur.String()
		if (len(tok) > 1 || (len(tok) == 1 && unicode.IsDigit(rune(tok[0])))) && !stopwords[tok] {
			tokens = append(tokens, tok)
		}
		cur.Reset()
	}

	runes := []rune(strings.ToLower(text))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case r == '.' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			// Decimal point inside a number.
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}
