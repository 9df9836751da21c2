// Package validate checks JSON request bodies against embedded JSON schemas.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

const schemaBase = "https://schemas.misiones-arrienda.local/"

// MustCompile compiles a schema document and returns the schema found at
// pointer (e.g. "#/$defs/create", or "" for the root). It panics on error
// since schemas are embedded at build time.
func MustCompile(name, document, pointer string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	url := schemaBase + name
	if err := c.AddResource(url, strings.NewReader(document)); err != nil {
		panic(fmt.Sprintf("loading schema %s: %v", name, err))
	}

	s, err := c.Compile(url + pointer)
	if err != nil {
		panic(fmt.Sprintf("compiling schema %s%s: %v", name, pointer, err))
	}
	return s
}

// Decode validates raw against schema and then unmarshals it into dst.
// Validation failures are returned as apperr.ErrInvalid.
func Decode(schema *jsonschema.Schema, raw []byte, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return apperr.Invalid("request body is required")
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Invalid("malformed JSON: %v", err)
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return apperr.Invalid("%s", Describe(ve))
		}
		return fmt.Errorf("validating payload: %w", err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Invalid("decoding payload: %v", err)
	}
	return nil
}

// Describe flattens a validation error into "field: message" pairs,
// sorted so the output is stable.
func Describe(ve *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				field = "body"
			}
			msgs = append(msgs, field+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
