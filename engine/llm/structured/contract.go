package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	reflectschema "github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonschema"
)

var codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// Contract binds a Go type to its JSON schema for prompting and parsing.
type Contract[T any] struct {
	name     string
	schema   map[string]any
	pretty   string
	compiled *jsonschema.Schema
	fields   []fieldDoc
}

type fieldDoc struct {
	path        string
	kind        string
	required    bool
	description string
}

// New reflects T into an inline schema and compiles it for validation.
func New[T any](name string) (*Contract[T], error) {
	reflector := &reflectschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	reflected := reflector.Reflect(new(T))
	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("structured: marshal schema %q: %w", name, err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("structured: decode schema %q: %w", name, err)
	}
	delete(schema, "$id")
	delete(schema, "$schema")
	clean, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("structured: marshal schema %q: %w", name, err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(clean)
	if err != nil {
		return nil, fmt.Errorf("structured: compile schema %q: %w", name, err)
	}
	pretty, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("structured: format schema %q: %w", name, err)
	}
	return &Contract[T]{
		name:     name,
		schema:   schema,
		pretty:   string(pretty),
		compiled: compiled,
		fields:   describe("", reflected),
	}, nil
}

// MustNew is New for package-level contracts over static types.
func MustNew[T any](name string) *Contract[T] {
	c, err := New[T](name)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Contract[T]) Name() string {
	return c.name
}

// Schema returns the JSON schema document.
func (c *Contract[T]) Schema() map[string]any {
	return c.schema
}

// FormatInstructions renders the output contract for inclusion in a prompt.
func (c *Contract[T]) FormatInstructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Respond with only a JSON object (%s) that conforms to the schema below.\n", c.name)
	b.WriteString("Fields:\n")
	for _, f := range c.fields {
		req := "optional"
		if f.required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %s (%s, %s)", f.path, f.kind, req)
		if f.description != "" {
			fmt.Fprintf(&b, ": %s", f.description)
		}
		b.WriteString("\n")
	}
	b.WriteString("JSON schema:\n```json\n")
	b.WriteString(c.pretty)
	b.WriteString("\n```")
	return b.String()
}

// Parse extracts the first JSON value from raw model text, validates it and
// decodes it into T. It never returns partial data.
func (c *Contract[T]) Parse(raw string) (*T, error) {
	fail := func(reason string) (*T, error) {
		return nil, &SchemaValidationError{Schema: c.name, Reason: reason, Raw: raw}
	}
	payload, err := extractJSON(raw)
	if err != nil {
		return fail(err.Error())
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return fail(fmt.Sprintf("invalid json: %v", err))
	}
	result := c.compiled.Validate(value)
	if !result.IsValid() {
		return fail(strings.Join(collectErrors(result), "; "))
	}
	out := new(T)
	if err := json.Unmarshal(payload, out); err != nil {
		return fail(fmt.Sprintf("decode: %v", err))
	}
	return out, nil
}

func extractJSON(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, errors.New("empty output")
	}
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, errors.New("no json value found")
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var value json.RawMessage
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return bytes.TrimSpace(value), nil
}

func collectErrors(result *jsonschema.EvaluationResult) []string {
	var out []string
	var walk func(r *jsonschema.EvaluationResult)
	walk = func(r *jsonschema.EvaluationResult) {
		if r == nil {
			return
		}
		location := r.InstanceLocation
		if location == "" {
			location = "/"
		}
		for _, e := range r.Errors {
			out = append(out, fmt.Sprintf("%s: %s", location, e.Error()))
		}
		for _, d := range r.Details {
			walk(d)
		}
	}
	walk(result)
	sort.Strings(out)
	if len(out) == 0 {
		out = append(out, "schema validation failed")
	}
	return out
}

func describe(prefix string, schema *reflectschema.Schema) []fieldDoc {
	if schema == nil || schema.Properties == nil {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	var out []fieldDoc
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name, prop := pair.Key, pair.Value
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		out = append(out, fieldDoc{
			path:        path,
			kind:        prop.Type,
			required:    required[name],
			description: prop.Description,
		})
		switch prop.Type {
		case "object":
			out = append(out, describe(path, prop)...)
		case "array":
			out = append(out, describe(path+"[]", prop.Items)...)
		}
	}
	return out
}
