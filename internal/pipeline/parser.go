package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParsePayload extracts the JSON object from a raw model response. The
// model is told to return bare JSON, but in practice responses arrive
// wrapped in prose ("Here is the data: {...} Thanks!") or Markdown
// fences, so we clean first and then slice from the first '{' to the
// last '}' inclusive.
//
// A response without a brace pair, or whose braced substring does not
// unmarshal, fails with MalformedResponseError. A payload that is an
// explicit rejection signal (a lone "error" field, e.g. for an
// unreadable image) fails with ContentRejectedError instead, so the
// caller can tell "try again later" apart from "this image is no good".
func ParsePayload(raw string) (map[string]any, error) {
	clean := stripFences(raw)

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end == -1 || end < start {
		return nil, &MalformedResponseError{
			Raw: raw,
			Err: fmt.Errorf("no JSON object found in response"),
		}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(clean[start:end+1]), &payload); err != nil {
		return nil, &MalformedResponseError{
			Raw: raw,
			Err: fmt.Errorf("unmarshal JSON: %w", err),
		}
	}

	if reason, ok := rejectionSignal(payload); ok {
		return nil, &ContentRejectedError{Reason: reason}
	}

	return payload, nil
}

// rejectionSignal detects a payload whose only content is an "error"
// field - the shape the prompt instructs the model to emit when it
// refuses an image.
func rejectionSignal(payload map[string]any) (string, bool) {
	if len(payload) != 1 {
		return "", false
	}
	v, ok := payload["error"]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// stripFences removes ```json ... ``` or ``` ... ``` wrappers if the
// model ignored the no-Markdown instruction.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	// Remove trailing ``` if present.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}
