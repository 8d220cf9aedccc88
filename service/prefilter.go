package service

import (
	"strings"
	"unicode"

	"claimverifier-backend/models"
)

// FilteredSentence is one transcript sentence that survived the pre-filter,
// carried forward with its speaker attribution.
type FilteredSentence struct {
	Sentence     string
	Speaker      string
	Role         string
	SegmentIndex int
}

// Prefilter cuts the transcript down to sentences that can plausibly carry a
// quantitative claim before any model sees them. It is biased toward recall:
// a kept non-claim costs one model token budget line, a dropped claim is
// gone for good.
type Prefilter struct{}

// NewPrefilter creates a transcript pre-filter.
func NewPrefilter() *Prefilter {
	return &Prefilter{}
}

// financialTerms are the surface signals a quantitative claim needs besides
// a number. Matched case-insensitively against the whole sentence.
var financialTerms = []string{
	"revenue", "sales", "top line", "topline",
	"net income", "bottom line", "profit", "earnings", "eps",
	"margin", "gross margin", "operating margin",
	"cash flow", "free cash flow", "fcf", "operating cash",
	"operating income", "operating expenses", "opex", "capex",
	"cost of", "expenses", "guidance",
	"grew", "growth", "increased", "decreased", "declined", "up ", "down ",
	"year-over-year", "year over year", "yoy",
	"quarter-over-quarter", "quarter over quarter", "sequentially",
	"gaap", "non-gaap", "adjusted",
	"billion", "million", "thousand",
	"per share", "diluted", "basis points",
	"subscribers", "customers", "units", "shipments",
	"buyback", "repurchase", "dividend",
}

// Filter returns the transcript sentences worth sending to extraction.
// Analyst segments are skipped entirely: only management claims are verified.
func (p *Prefilter) Filter(transcript *models.Transcript) []FilteredSentence {
	var kept []FilteredSentence

	for i, segment := range transcript.Segments {
		if strings.Contains(segment.Role, "Analyst") {
			continue
		}

		for _, sentence := range SplitSentences(segment.Text) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			if !containsNumber(sentence) {
				continue
			}
			if !containsFinancialSignal(sentence) {
				continue
			}
			kept = append(kept, FilteredSentence{
				Sentence:     sentence,
				Speaker:      segment.Speaker,
				Role:         segment.Role,
				SegmentIndex: i,
			})
		}
	}

	return kept
}

// containsNumber reports whether the sentence carries a digit, a currency
// symbol, or a spelled-out number that commonly precedes a scale word.
func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) || r == '$' || r == '%' {
			return true
		}
	}
	lower := strings.ToLower(s)
	for _, w := range []string{"one ", "two ", "three ", "four ", "five ", "six ", "seven ", "eight ", "nine ", "ten ", "double-digit", "triple-digit"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func containsFinancialSignal(s string) bool {
	lower := strings.ToLower(s)
	if strings.ContainsAny(s, "$%") {
		return true
	}
	for _, term := range financialTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// abbreviations that end with a period but do not end a sentence.
var abbreviations = map[string]bool{
	"u.s":  true,
	"u.k":  true,
	"vs":   true,
	"inc":  true,
	"corp": true,
	"ltd":  true,
	"co":   true,
	"mr":   true,
	"ms":   true,
	"mrs":  true,
	"dr":   true,
	"jr":   true,
	"sr":   true,
	"no":   true,
	"approx": true,
	"est":  true,
	"fig":  true,
	"q":    true,
	"fy":   true,
}

// SplitSentences breaks text on sentence-ending punctuation while keeping
// common abbreviations and decimal numbers intact.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		// A boundary needs trailing whitespace followed by more text.
		if i+1 >= len(runes) {
			break
		}
		if !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' {
			// Decimal like "3.5" never reaches here (next rune is a digit,
			// not a space), but "earnings grew 3.5 percent." style trailing
			// periods after abbreviations do.
			if isAbbreviation(runes, start, i) {
				continue
			}
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// isAbbreviation checks whether the word ending at the period at index dot is
// a known abbreviation or a single initial.
func isAbbreviation(runes []rune, start, dot int) bool {
	wordStart := dot
	for wordStart > start && !unicode.IsSpace(runes[wordStart-1]) {
		wordStart--
	}
	word := strings.ToLower(strings.TrimSuffix(string(runes[wordStart:dot]), "."))
	word = strings.TrimSuffix(word, ".")
	if abbreviations[word] {
		return true
	}
	// Single capital initial like "J."
	if dot-wordStart == 1 && unicode.IsUpper(runes[wordStart]) {
		return true
	}
	return false
}
