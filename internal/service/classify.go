package service

import (
	"bytes"
	"encoding/json"
	"strings"
)

type EventKind int

const (
	EventOther EventKind = iota
	EventPaymentSucceeded
)

func (k EventKind) String() string {
	if k == EventPaymentSucceeded {
		return "payment_succeeded"
	}
	return "other"
}

var successTypeMarkers = []string{"succeeded", "success", "completed"}

// ParsePayload decodes a webhook body into a generic object. Anything that
// is not a JSON object yields an empty payload.
func ParsePayload(body []byte) map[string]any {
	payload := map[string]any{}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

// Classify maps a provider payload onto the internal event taxonomy. It has
// no failure mode: unknown shapes are EventOther.
func Classify(payload map[string]any) EventKind {
	for _, key := range []string{"type", "event_type"} {
		t := strings.ToLower(stringAt(payload, key))
		for _, marker := range successTypeMarkers {
			if t != "" && strings.Contains(t, marker) {
				return EventPaymentSucceeded
			}
		}
	}

	switch strings.ToLower(stringAt(payload, "status")) {
	case "succeeded", "completed":
		return EventPaymentSucceeded
	}

	return EventOther
}

// stringAt walks nested objects and returns the string found at path, or ""
// when any hop is missing or of the wrong type.
func stringAt(payload map[string]any, path ...string) string {
	v, ok := valueAt(payload, path...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func valueAt(payload map[string]any, path ...string) (any, bool) {
	var cur any = payload
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}
