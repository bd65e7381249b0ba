// Package flow implements the screen-routing state machine.
//
// This file handles unresolved template placeholders. The WhatsApp Flow
// client sometimes sends a literal binding expression such as
// "${data.selected_barber}" instead of the bound value when its own state
// machine fails to interpolate; the server substitutes from the rolling
// flow context instead of propagating the garbage string.
package flow

import (
	"log/slog"
	"strings"
)

// IsPlaceholder reports whether v is an unresolved template placeholder of
// the exact shape "${...}".
func IsPlaceholder(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

// placeholderVariable extracts the last segment of the dotted path inside a
// placeholder, e.g. "${data.selected_barber}" -> "selected_barber".
func placeholderVariable(s string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
	if idx := strings.LastIndex(inner, "."); idx >= 0 {
		return inner[idx+1:]
	}
	return inner
}

// ResolvePlaceholders substitutes unresolved placeholders in payload from
// context. For each placeholder field it tries, in order, the context value
// under the field's own name, then under the variable name extracted from
// the placeholder. Unresolvable placeholders become nil and are logged.
//
// Resolution is idempotent: already-resolved values never match the
// placeholder pattern, so resolving twice equals resolving once.
func ResolvePlaceholders(payload, context map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	resolved := make(map[string]interface{}, len(payload))
	for field, value := range payload {
		if !IsPlaceholder(value) {
			resolved[field] = value
			continue
		}

		expr := value.(string)
		if v, ok := context[field]; ok && v != nil {
			resolved[field] = v
			slog.Debug("flow.ResolvePlaceholders: substituted from context", "field", field, "source", "field_name")
			continue
		}
		variable := placeholderVariable(expr)
		if v, ok := context[variable]; ok && v != nil {
			resolved[field] = v
			slog.Debug("flow.ResolvePlaceholders: substituted from context", "field", field, "source", "variable_name", "variable", variable)
			continue
		}

		slog.Warn("flow.ResolvePlaceholders: unresolved placeholder", "field", field, "expression", expr)
		resolved[field] = nil
	}
	return resolved
}
