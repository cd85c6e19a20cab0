package registry

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// FromMCPTools builds a registry from an MCP tools/list result.
func FromMCPTools(tools []*mcp.Tool) (*Registry, error) {
	descs := make([]Descriptor, 0, len(tools))
	for _, t := range tools {
		d, err := DescriptorFromMCP(t)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return New(descs...)
}

// DescriptorFromMCP converts one MCP tool. Params are listed in property
// name order.
func DescriptorFromMCP(t *mcp.Tool) (Descriptor, error) {
	d := Descriptor{Name: t.Name, Description: t.Description}
	if t.InputSchema == nil {
		return d, nil
	}
	b, err := json.Marshal(t.InputSchema)
	if err != nil {
		return d, fmt.Errorf("tool %s: marshaling input schema: %w", t.Name, err)
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		return d, fmt.Errorf("tool %s: decoding input schema: %w", t.Name, err)
	}
	d.Schema = schema

	required := map[string]bool{}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		p := Param{Name: n, Type: "any", Required: required[n]}
		if info, ok := props[n].(map[string]any); ok {
			if typ, ok := info["type"].(string); ok {
				p.Type = typ
			}
			p.Description, _ = info["description"].(string)
		}
		d.Params = append(d.Params, p)
	}
	return d, nil
}
