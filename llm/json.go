package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model responses rarely arrive as clean JSON: reasoning models prepend
// think-tags, others wrap output in markdown fences or leave trailing
// commas. The helpers below strip that noise before unmarshalling.

var (
	thinkTagRE      = regexp.MustCompile(`(?s)<think>.*?</think>`)
	jsonArrayRE     = regexp.MustCompile(`(?s)(\[.*\])`)
	jsonObjectRE    = regexp.MustCompile(`(?s)(\{.*\})`)
	trailingCommaRE = regexp.MustCompile(`,\s*([\]}])`)
	codeFenceRE     = regexp.MustCompile("(?m)^```(?:json)?\\s*|\\s*```$")
	bareObjectRE    = regexp.MustCompile(`\{[^{}]*\}`)
)

func stripNoise(text string) string {
	text = thinkTagRE.ReplaceAllString(text, "")
	text = codeFenceRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// DecodeJSONArray extracts and parses the first JSON array found in a model
// response into dst. Returns ErrMalformedOutput when nothing parseable
// remains after cleanup.
func DecodeJSONArray(text string, dst interface{}) error {
	cleaned := stripNoise(text)

	if match := jsonArrayRE.FindStringSubmatch(cleaned); match != nil {
		cleaned = strings.TrimSpace(match[1])
	}

	if err := json.Unmarshal([]byte(cleaned), dst); err == nil {
		return nil
	}

	// Trailing commas before closing brackets are the most common defect.
	repaired := trailingCommaRE.ReplaceAllString(cleaned, "$1")
	if err := json.Unmarshal([]byte(repaired), dst); err == nil {
		return nil
	}

	// Last resort: collect bare objects and wrap them into an array.
	objects := bareObjectRE.FindAllString(repaired, -1)
	if len(objects) > 0 {
		wrapped := "[" + strings.Join(objects, ",") + "]"
		if err := json.Unmarshal([]byte(wrapped), dst); err == nil {
			return nil
		}
	}

	return ErrMalformedOutput
}

// DecodeJSONObject extracts and parses the first JSON object found in a
// model response into dst.
func DecodeJSONObject(text string, dst interface{}) error {
	cleaned := stripNoise(text)

	if match := jsonObjectRE.FindStringSubmatch(cleaned); match != nil {
		cleaned = strings.TrimSpace(match[1])
	}

	if err := json.Unmarshal([]byte(cleaned), dst); err == nil {
		return nil
	}

	repaired := trailingCommaRE.ReplaceAllString(cleaned, "$1")
	if err := json.Unmarshal([]byte(repaired), dst); err == nil {
		return nil
	}

	return ErrMalformedOutput
}
