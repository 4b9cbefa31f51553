package llm

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractJSONTagged(t *testing.T) {
	result := ExtractJSON(`Here is the result: <JSON>{"a":1}</JSON> thanks`)
	want := map[string]any{"a": float64(1)}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("expected %v, got %v", want, result)
	}
}

func TestExtractJSONTagCaseInsensitive(t *testing.T) {
	result := ExtractObject("<json>\n{\"risk\": \"High\"}\n</json>")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["risk"] != "High" {
		t.Errorf("expected risk='High', got %v", result["risk"])
	}
}

func TestExtractJSONWithCodeFence(t *testing.T) {
	text := "Sure.\n```json\n{\"key\": \"value\"}\n```\nLet me know."
	result := ExtractObject(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestExtractJSONWithPlainFence(t *testing.T) {
	result := ExtractObject("```\n{\"key\": \"value\"}\n```")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestExtractJSONSkipsBrokenFence(t *testing.T) {
	text := "```\nnot json\n```\n```json\n{\"second\": true}\n```"
	result := ExtractObject(text)
	if result == nil || result["second"] != true {
		t.Errorf("expected second fenced block, got %v", result)
	}
}

func TestExtractJSONBrokenTagFallsThrough(t *testing.T) {
	text := `<JSON>{"a": </JSON> but later {"b": 2}`
	result := ExtractObject(text)
	if result == nil || result["b"] != float64(2) {
		t.Errorf("expected fallback to balanced object, got %v", result)
	}
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	embedded := `{"summary": "Uses {braces} and [brackets] in text", "scores": [1, 2, {"x": "y"}], "ok": true}`
	text := "The analysis follows. " + embedded + " Hope this helps!"

	var want any
	if err := json.Unmarshal([]byte(embedded), &want); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	got := ExtractJSON(text)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExtractJSONPrefersLargestCandidate(t *testing.T) {
	text := `first {"small": 1} then {"large": {"nested": [1, 2, 3]}, "more": "data"}`
	result := ExtractObject(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if _, ok := result["large"]; !ok {
		t.Errorf("expected the larger object, got %v", result)
	}
}

func TestExtractJSONTrailingComma(t *testing.T) {
	result := ExtractObject(`{"a": [1, 2,], "b": "x",}`)
	if result == nil {
		t.Fatal("expected repaired result")
	}
	if result["b"] != "x" {
		t.Errorf("expected b='x', got %v", result["b"])
	}
}

func TestExtractJSONSmartQuotes(t *testing.T) {
	result := ExtractObject("{“a”: “b”}")
	if result == nil || result["a"] != "b" {
		t.Errorf("expected smart quotes repaired, got %v", result)
	}
}

func TestExtractJSONByteOrderMark(t *testing.T) {
	result := ExtractObject("\ufeff{\"a\": 1}")
	if result == nil || result["a"] != float64(1) {
		t.Errorf("expected BOM stripped, got %v", result)
	}
}

func TestExtractJSONInvalid(t *testing.T) {
	if result := ExtractJSON("not json at all"); result != nil {
		t.Errorf("expected nil for invalid JSON, got %v", result)
	}
}

func TestExtractJSONEmpty(t *testing.T) {
	if result := ExtractJSON(""); result != nil {
		t.Error("expected nil for empty string")
	}
	if result := ExtractJSON("   \n  "); result != nil {
		t.Error("expected nil for whitespace")
	}
}

func TestExtractJSONScalarIgnored(t *testing.T) {
	if result := ExtractJSON("42"); result != nil {
		t.Errorf("expected nil for bare scalar, got %v", result)
	}
}

func TestExtractJSONUnbalanced(t *testing.T) {
	if result := ExtractJSON(`{"a": [1, 2}`); result != nil {
		t.Errorf("expected nil for unbalanced brackets, got %v", result)
	}
}

func TestExtractArray(t *testing.T) {
	arr := ExtractArray(`<JSON>[{"entity_name": "Stripe"}, {"entity_name": "AWS"}]</JSON>`)
	if len(arr) != 2 {
		t.Fatalf("expected 2 items, got %d", len(arr))
	}

	wrapped := ExtractArray(`{"entities": [{"entity_name": "Stripe"}]}`)
	if len(wrapped) != 1 {
		t.Errorf("expected array unwrapped from object, got %v", wrapped)
	}

	if ExtractArray(`{"a": [1], "b": [2]}`) != nil {
		t.Error("expected nil when the object has several arrays")
	}
}

func TestExtractObjectRejectsArray(t *testing.T) {
	if ExtractObject(`[1, 2, 3]`) != nil {
		t.Error("expected nil object for top-level array")
	}
}
