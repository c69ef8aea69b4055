package jsonout

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a lazily compiled JSON Schema document.
type Schema struct {
	name   string
	source string

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// NewSchema registers source under name; compilation happens on first use.
func NewSchema(name, source string) *Schema {
	return &Schema{name: name, source: source}
}

// Source returns the raw schema text, for quoting in prompts.
func (s *Schema) Source() string { return s.source }

// Compiled returns the compiled schema.
func (s *Schema) Compiled() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(s.name, strings.NewReader(s.source)); err != nil {
			s.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, err := compiler.Compile(s.name)
		if err != nil {
			s.err = fmt.Errorf("compile %s: %w", s.name, err)
			return
		}
		s.compiled = compiled
	})
	return s.compiled, s.err
}

// SchemaError reports a decoded value that does not match its schema.
type SchemaError struct {
	Schema string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("value does not match %s: %v", e.Schema, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Validate checks a generic decoded value against the schema.
func (s *Schema) Validate(v any) error {
	compiled, err := s.Compiled()
	if err != nil {
		return err
	}
	if err := compiled.Validate(v); err != nil {
		return &SchemaError{Schema: s.name, Err: err}
	}
	return nil
}

// Decode extracts the JSON value embedded in text, validates it against
// schema and decodes it into v.
func Decode(text string, schema *Schema, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := schema.Validate(raw); err != nil {
		return err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return &DecodeError{Fragment: text, Err: err}
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &SchemaError{Schema: schema.name, Err: err}
	}
	return nil
}
