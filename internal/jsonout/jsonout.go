// Package jsonout extracts JSON payloads embedded in free-form model text.
//
// Models are asked to answer with JSON only but routinely wrap the payload in
// prose or markdown fences, so every structured response goes through Extract
// rather than json.Unmarshal.
package jsonout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the text contains no object or array delimiters.
var ErrNoJSON = errors.New("no JSON value found")

// DecodeError reports a candidate fragment that could not be decoded.
type DecodeError struct {
	Fragment string
	Err      error
}

func (e *DecodeError) Error() string {
	frag := e.Fragment
	if len(frag) > 200 {
		frag = frag[:200] + "..."
	}
	return fmt.Sprintf("decode JSON fragment %q: %v", frag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Extract returns the first JSON object or array found in text, decoded into
// generic Go values (map[string]any, []any, float64, string, bool, nil).
func Extract(text string) (any, error) {
	var v any
	if err := ExtractInto(text, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ExtractInto decodes the first JSON object or array found in text into v.
//
// The greedy span from the first opener to the last matching closer is tried
// first. When that span does not decode (trailing prose containing braces, two
// payloads in one answer), the first complete value starting at the opener is
// decoded instead.
func ExtractInto(text string, v any) error {
	start, end, ok := span(text)
	if !ok {
		return &DecodeError{Fragment: text, Err: ErrNoJSON}
	}
	fragment := text[start : end+1]
	err := json.Unmarshal([]byte(fragment), v)
	if err == nil {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if derr := dec.Decode(v); derr == nil {
		return nil
	}
	return &DecodeError{Fragment: fragment, Err: err}
}

// span locates the greedy candidate: first '{' or '[' and the last closer of
// the same kind.
func span(text string) (int, int, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return 0, 0, false
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}
