package jsonout

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestExtractRoundTripInsideProse(t *testing.T) {
	values := []any{
		map[string]any{"requete_valide": true, "lieux": []any{"Paris"}},
		[]any{map[string]any{"task": "SEARCH_DOCS", "out": "search_output"}, map[string]any{"task": "SYNTHESIZE"}},
		map[string]any{},
		[]any{},
		map[string]any{"nested": map[string]any{"score": 7.5, "ok": false, "none": nil}},
	}
	wrappers := []struct{ before, after string }{
		{"", ""},
		{"Voici le résultat : ", ""},
		{"", "\nJ'espère que cela aide."},
		{"```json\n", "\n```"},
		{"Réponse:\n\n", "\n\nFin."},
	}
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		for _, w := range wrappers {
			text := w.before + string(raw) + w.after
			got, err := Extract(text)
			if err != nil {
				t.Fatalf("Extract(%q): %v", text, err)
			}
			if !reflect.DeepEqual(got, v) {
				t.Fatalf("Extract(%q) = %#v, want %#v", text, got, v)
			}
		}
	}
}

func TestExtractFallsBackToFirstValue(t *testing.T) {
	text := `{"a":1} and later a stray brace }`
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || m["a"] != float64(1) {
		t.Fatalf("unexpected value %#v", got)
	}
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("Désolé, je ne peux pas répondre.")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestExtractMalformedCarriesFragment(t *testing.T) {
	text := `voici: {"task": "SEARCH_DOCS", 'args': {}}`
	_, err := Extract(text)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Fragment != `{"task": "SEARCH_DOCS", 'args': {}}` {
		t.Fatalf("unexpected fragment %q", de.Fragment)
	}
}

func TestExtractIntoTyped(t *testing.T) {
	var out struct {
		Visualization string `json:"visualization"`
	}
	if err := ExtractInto(`Mon choix: {"visualization": "histogramme"}`, &out); err != nil {
		t.Fatalf("ExtractInto: %v", err)
	}
	if out.Visualization != "histogramme" {
		t.Fatalf("got %q", out.Visualization)
	}
}
