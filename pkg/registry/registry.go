// Package registry holds the static catalog of callable tools.
//
// Descriptors come either from a live MCP tool listing or from the
// generated Python wrapper files on disk. The registry is read-only once
// built and safe for concurrent use.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrUnknownTool is returned for names the registry does not hold.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments wraps schema validation failures.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Param describes one tool argument.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Descriptor describes one tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Params      []Param        `json:"params"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Required returns the names of the required parameters.
func (d Descriptor) Required() []string {
	var out []string
	for _, p := range d.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

type entry struct {
	desc   Descriptor
	schema *jsonschema.Schema
}

// Registry maps tool names to descriptors.
type Registry struct {
	tools map[string]entry
	names []string
}

// New builds a registry, compiling each descriptor's schema. A descriptor
// without a schema gets one derived from its params.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{tools: make(map[string]entry, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, errors.New("registry: descriptor without name")
		}
		if _, dup := r.tools[d.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate tool %q", d.Name)
		}
		if d.Schema == nil {
			d.Schema = SchemaFromParams(d.Params)
		}
		s, err := compileSchema(d.Schema)
		if err != nil {
			return nil, fmt.Errorf("registry: tool %s schema: %w", d.Name, err)
		}
		r.tools[d.Name] = entry{desc: d, schema: s}
		r.names = append(r.names, d.Name)
	}
	slices.Sort(r.names)
	return r, nil
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Names returns tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.names)
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	e, ok := r.tools[name]
	return e.desc, ok
}

// Descriptors returns all descriptors sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	if r == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.tools[n].desc)
	}
	return out
}

// Validate checks args against the tool's schema. Nil args validate as an
// empty object.
func (r *Registry) Validate(name string, args map[string]any) error {
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	e, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	// The validator expects decoded JSON values, not arbitrary Go types.
	var doc any
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := e.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", ErrInvalidArguments, flatten(ve))
		}
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// flatten joins the leaf messages of a validation error tree.
func flatten(ve *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}

// SchemaFromParams derives a permissive object schema. Unknown properties
// are allowed since the upstream API accepts extra options.
func SchemaFromParams(params []Param) map[string]any {
	props := map[string]any{}
	var required []any
	for _, p := range params {
		prop := map[string]any{}
		if t := jsonType(p.Type); t != "" {
			prop["type"] = t
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func jsonType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "string", "str":
		return "string"
	case "integer", "int":
		return "integer"
	case "number", "float":
		return "number"
	case "boolean", "bool":
		return "boolean"
	case "array", "list":
		return "array"
	case "object", "dict":
		return "object"
	default:
		return ""
	}
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
