package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONArray_CleanInput(t *testing.T) {
	var out []map[string]interface{}
	err := DecodeJSONArray(`[{"metric": "revenue"}, {"metric": "eps"}]`, &out)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDecodeJSONArray_ThinkTagsAndFences(t *testing.T) {
	input := "<think>the revenue claim looks solid</think>\n```json\n[{\"metric\": \"revenue\"}]\n```"
	var out []map[string]interface{}
	err := DecodeJSONArray(input, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "revenue", out[0]["metric"])
}

func TestDecodeJSONArray_TrailingCommas(t *testing.T) {
	var out []map[string]interface{}
	err := DecodeJSONArray(`[{"metric": "eps",}, ]`, &out)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestDecodeJSONArray_BareObjects(t *testing.T) {
	input := `Here are the claims: {"metric": "revenue"} and also {"metric": "eps"}`
	var out []map[string]interface{}
	err := DecodeJSONArray(input, &out)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDecodeJSONArray_SurroundingProse(t *testing.T) {
	input := "Sure, here is the JSON you asked for:\n[{\"metric\": \"revenue\"}]\nLet me know if you need anything else."
	var out []map[string]interface{}
	err := DecodeJSONArray(input, &out)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestDecodeJSONArray_Garbage(t *testing.T) {
	var out []map[string]interface{}
	err := DecodeJSONArray("I could not find any claims in the text.", &out)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestDecodeJSONObject_Fenced(t *testing.T) {
	input := "```json\n{\"verdict\": \"VERIFIED\"}\n```"
	var out map[string]interface{}
	err := DecodeJSONObject(input, &out)
	require.NoError(t, err)
	assert.Equal(t, "VERIFIED", out["verdict"])
}

func TestDecodeJSONObject_TrailingComma(t *testing.T) {
	var out map[string]interface{}
	err := DecodeJSONObject(`{"verdict": "FALSE", "confidence": "high",}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "FALSE", out["verdict"])
}

func TestDecodeJSONObject_Garbage(t *testing.T) {
	var out map[string]interface{}
	err := DecodeJSONObject("no json here", &out)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}
