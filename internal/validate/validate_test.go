package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

const testSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"$defs": {
		"fields": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"name":  {"type": "string", "minLength": 1},
				"count": {"type": "integer", "minimum": 0}
			}
		},
		"create": {
			"allOf": [{"$ref": "#/$defs/fields"}],
			"required": ["name"]
		}
	}
}`

type payload struct {
	Name  string `json:"name"`
	Count *int   `json:"count"`
}

func TestDecode(t *testing.T) {
	schema := MustCompile("test.json", testSchema, "#/$defs/create")

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"name":"casa","count":2}`, ""},
		{"empty body", ``, "request body is required"},
		{"malformed", `{"name":`, "malformed JSON"},
		{"missing required", `{"count":1}`, "name"},
		{"negative count", `{"name":"x","count":-1}`, "count"},
		{"unknown field", `{"name":"x","color":"red"}`, "color"},
		{"wrong type", `{"name":5}`, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := Decode(schema, []byte(tt.body), &p)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Name != "casa" || p.Count == nil || *p.Count != 2 {
					t.Errorf("decoded %+v", p)
				}
				return
			}
			if !errors.Is(err, apperr.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMustCompilePanicsOnBadSchema(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid schema")
		}
	}()
	MustCompile("bad.json", `{"type": 12}`, "")
}
