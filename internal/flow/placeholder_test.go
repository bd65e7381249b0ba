package flow

import (
	"reflect"
	"testing"
)

func TestIsPlaceholder(t *testing.T) {
	cases := []struct {
		value    interface{}
		expected bool
	}{
		{"${data.selected_barber}", true},
		{"${screen.selected_date}", true},
		{"${x}", true},
		{"joao", false},
		{"$ {not_quite}", false},
		{"${unclosed", false},
		{"closed}", false},
		{42, false},
		{nil, false},
		{true, false},
	}
	for _, c := range cases {
		if got := IsPlaceholder(c.value); got != c.expected {
			t.Errorf("IsPlaceholder(%v) = %v, expected %v", c.value, got, c.expected)
		}
	}
}

func TestResolvePlaceholders(t *testing.T) {
	context := map[string]interface{}{
		"selected_barber": "joao",
		"selected_date":   "2025-09-05",
	}
	payload := map[string]interface{}{
		"action_type":     "SELECT_TIME",
		"selected_barber": "${data.selected_barber}",
		"selected_time":   "10:00",
	}

	resolved := ResolvePlaceholders(payload, context)

	if resolved["selected_barber"] != "joao" {
		t.Errorf("placeholder not substituted from context: %v", resolved["selected_barber"])
	}
	if resolved["selected_time"] != "10:00" {
		t.Errorf("literal value must pass through unchanged: %v", resolved["selected_time"])
	}
	if resolved["action_type"] != "SELECT_TIME" {
		t.Errorf("non-placeholder field altered: %v", resolved["action_type"])
	}
}

func TestResolvePlaceholdersVariableNameFallback(t *testing.T) {
	// The context key matches the variable inside the expression, not the
	// payload field name.
	context := map[string]interface{}{"selected_date": "2025-09-05"}
	payload := map[string]interface{}{"date": "${screen.data.selected_date}"}

	resolved := ResolvePlaceholders(payload, context)
	if resolved["date"] != "2025-09-05" {
		t.Errorf("variable-name fallback failed: %v", resolved["date"])
	}
}

func TestResolvePlaceholdersUnresolvable(t *testing.T) {
	payload := map[string]interface{}{"selected_barber": "${data.selected_barber}"}

	resolved := ResolvePlaceholders(payload, map[string]interface{}{})
	if v, ok := resolved["selected_barber"]; !ok || v != nil {
		t.Errorf("unresolvable placeholder must become nil, got %v", v)
	}
}

func TestResolvePlaceholdersIdempotent(t *testing.T) {
	context := map[string]interface{}{
		"selected_barber": "joao",
		"selected_date":   "2025-09-05",
	}
	payload := map[string]interface{}{
		"selected_barber": "${data.selected_barber}",
		"selected_date":   "2025-09-05",
		"selected_time":   "${data.selected_time}",
	}

	once := ResolvePlaceholders(payload, context)
	twice := ResolvePlaceholders(once, context)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("resolution is not idempotent: %v vs %v", once, twice)
	}
}

func TestResolvePlaceholdersNilPayload(t *testing.T) {
	if got := ResolvePlaceholders(nil, map[string]interface{}{}); got != nil {
		t.Errorf("nil payload must resolve to nil, got %v", got)
	}
}
