package dispatch

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/CIRWEL/unitares-sub004/internal/apierr"
)

// Envelope is the JSON-serializable response shape returned to the
// transport layer: either a success payload or a sanitized error.
type Envelope struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload,omitempty"`
	*ErrorEnvelope
}

// ErrorEnvelope is the error half of Envelope, always present together with
// Success: false.
type ErrorEnvelope struct {
	Error         string            `json:"error,omitempty"`
	ErrorCode     string            `json:"error_code,omitempty"`
	ErrorCategory string            `json:"error_category,omitempty"`
	Recovery      *apierr.Recovery  `json:"recovery,omitempty"`
	Context       map[string]any    `json:"context,omitempty"`
	Notes         []string          `json:"notes,omitempty"`
	Coerced       []string          `json:"coerced_arguments,omitempty"`
}

// maxArraySerialize bounds how many elements of a response array survive
// shaping; beyond this the array is truncated and a marker entry appended
// so callers can tell the difference between "empty" and "clipped."
const maxArraySerialize = 200

var sanitizePattern = regexp.MustCompile(`(/[\w.\-]+)+\.go|internal/[\w/]+|github\.com/[\w.\-]+/[\w.\-/]+`)

// sanitizeMessage strips absolute file paths and internal module names from
// a message before it reaches a caller.
func sanitizeMessage(msg string) string {
	return sanitizePattern.ReplaceAllString(msg, "[internal]")
}

// shapeSuccess converts a handler's return value into a JSON-serializable
// payload map, applying the §4.11 shaping rules (sets/enums/datetimes
// already become plain values via each domain type's own json.Marshaler;
// here we only bound any top-level arrays).
func shapeSuccess(result any, notes []string, coerced []string) Envelope {
	payload := toPayloadMap(result)
	if len(notes) > 0 {
		payload["_migration_notes"] = notes
	}
	if len(coerced) > 0 {
		payload["_coerced_arguments"] = coerced
	}
	return Envelope{Success: true, Payload: payload}
}

func toPayloadMap(result any) map[string]any {
	if result == nil {
		return map[string]any{}
	}
	if m, ok := result.(map[string]any); ok {
		return truncateArrays(m)
	}
	buf, err := json.Marshal(result)
	if err != nil {
		return map[string]any{"result": "unserializable"}
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		// result marshaled to a non-object JSON value (scalar/array); wrap it.
		var raw any
		_ = json.Unmarshal(buf, &raw)
		return map[string]any{"result": raw}
	}
	return truncateArrays(m)
}

func truncateArrays(m map[string]any) map[string]any {
	for k, v := range m {
		if arr, ok := v.([]any); ok && len(arr) > maxArraySerialize {
			clipped := make([]any, maxArraySerialize+1)
			copy(clipped, arr[:maxArraySerialize])
			clipped[maxArraySerialize] = map[string]any{"_truncated": true, "omitted": len(arr) - maxArraySerialize}
			m[k] = clipped
		}
	}
	return m
}

// shapeError converts err into the sanitized error envelope. Known
// *apierr.Error values pass their category/code/recovery/context through
// unchanged (after sanitizing the message); anything else is folded into a
// generic system_error so no internal error type ever leaks to a caller.
func shapeError(err error, notes []string) Envelope {
	ae, ok := apierr.As(err)
	if !ok {
		ae = apierr.New(apierr.CategorySystem, apierr.CodeOperationFailed, "an internal error occurred")
	}
	msg := sanitizeMessage(ae.Message)
	msg = strings.TrimSpace(msg)

	return Envelope{
		Success: false,
		ErrorEnvelope: &ErrorEnvelope{
			Error:         msg,
			ErrorCode:     ae.Code,
			ErrorCategory: string(ae.Category),
			Recovery:      ae.Recovery,
			Context:       ae.Context,
			Notes:         notes,
		},
	}
}
