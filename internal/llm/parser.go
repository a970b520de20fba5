// Package llm provides clients for the external model gateway: chat
// completions, multimodal generation and embeddings. Each collaborator
// has a live HTTP variant and a degraded variant selected once at
// construction time.
package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON scans free text for an embedded JSON object and returns
// it as raw bytes. Backends wrap their structured output in prose and
// code fences; the scan takes the widest brace-delimited span that
// parses. Returns ok=false when no usable block exists.
func ExtractJSON(text string) (json.RawMessage, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	candidate := []byte(text[start : end+1])
	if json.Valid(candidate) {
		return candidate, true
	}

	// Widest span failed; try narrowing from the right. Handles trailing
	// braces in surrounding prose.
	for end > start {
		end = strings.LastIndex(text[:end], "}")
		if end <= start {
			return nil, false
		}
		candidate = []byte(text[start : end+1])
		if json.Valid(candidate) {
			return candidate, true
		}
	}
	return nil, false
}

// DecodeJSONBlock extracts a JSON object from text and unmarshals it
// into v. Returns false when no block was found or it did not decode.
func DecodeJSONBlock(text string, v interface{}) bool {
	raw, ok := ExtractJSON(text)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
