package agent

import "testing"

type probe struct {
	React   bool   `json:"react"`
	Opening string `json:"opening"`
}

func TestExtractJSONPlain(t *testing.T) {
	var p probe
	if !ExtractJSON(`{"react": true, "opening": "hi"}`, &p) {
		t.Fatal("expected parse success")
	}
	if !p.React || p.Opening != "hi" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestExtractJSONWrappedInProse(t *testing.T) {
	text := "Sure! Here's my decision:\n```json\n{\"react\": true, \"opening\": \"Hey there\"}\n```\nHope that helps."
	var p probe
	if !ExtractJSON(text, &p) {
		t.Fatal("expected parse success through code fences")
	}
	if p.Opening != "Hey there" {
		t.Errorf("unexpected opening: %q", p.Opening)
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	text := `{"overview": "a day", "activities": [{"description": "open {the} shop"}]}`
	var v map[string]interface{}
	if !ExtractJSON(text, &v) {
		t.Fatal("expected parse success with braces inside strings")
	}
}

func TestExtractJSONEscapedQuote(t *testing.T) {
	text := `{"opening": "she said \"hello{\" to me"}`
	var p probe
	if !ExtractJSON(text, &p) {
		t.Fatal("expected parse success with escaped quotes")
	}
}

func TestExtractJSONSkipsBadCandidate(t *testing.T) {
	// First balanced object is not valid JSON; the scan must move on.
	text := `{not json} then {"react": false}`
	var p probe
	if !ExtractJSON(text, &p) {
		t.Fatal("expected parse success on the second candidate")
	}
	if p.React {
		t.Error("expected react=false")
	}
}

func TestExtractJSONFailures(t *testing.T) {
	var p probe
	if ExtractJSON("no object here", &p) {
		t.Error("expected failure without braces")
	}
	if ExtractJSON(`{"truncated": tru`, &p) {
		t.Error("expected failure on unbalanced object")
	}
	if ExtractJSON("", &p) {
		t.Error("expected failure on empty input")
	}
}
