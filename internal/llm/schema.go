package llm

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/user/crmassist/internal/llmtypes"
)

// ToOpenAITools renders definitions in the OpenAI function-calling dialect:
// {"type":"function","function":{"name","description","parameters"}}
func ToOpenAITools(defs []ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  def.JSONSchema(),
			},
		})
	}
	return out
}

// ToAnthropicTools renders definitions in the Anthropic dialect:
// {"name","description","input_schema"}
func ToAnthropicTools(defs []ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		out = append(out, map[string]any{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": def.JSONSchema(),
		})
	}
	return out
}

// ToGeminiTools renders definitions in the Gemini dialect: a single tool holding
// all functionDeclarations, OpenAPI upper-case types and no defaults
func ToGeminiTools(defs []ToolDefinition) []map[string]any {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		decl := map[string]any{
			"name":        def.Name,
			"description": def.Description,
		}
		if params := geminiSchema(def); params != nil {
			decl["parameters"] = params
		}
		decls = append(decls, decl)
	}
	return []map[string]any{{"functionDeclarations": decls}}
}

// geminiSchema converts a definition into the Gemini parameter schema.
// Gemini rejects OBJECT schemas with no properties, so nil is returned for those.
func geminiSchema(def ToolDefinition) map[string]any {
	if len(def.Parameters) == 0 {
		return nil
	}
	properties := make(map[string]any, len(def.Parameters))
	required := []string{}
	for _, p := range def.Parameters {
		prop := map[string]any{"type": strings.ToUpper(string(p.Type))}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == llmtypes.TypeArray {
			items := p.Items
			if items == "" {
				items = llmtypes.TypeString
			}
			prop["items"] = map[string]any{"type": strings.ToUpper(string(items))}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "OBJECT",
		"properties": properties,
		"required":   required,
	}
}

// ParseOpenAITools is the inverse of ToOpenAITools
func ParseOpenAITools(tools []map[string]any) ([]ToolDefinition, error) {
	defs := make([]ToolDefinition, 0, len(tools))
	for i, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tool %d: missing function object", i)
		}
		def, err := parseDeclaration(fn, "parameters")
		if err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParseAnthropicTools is the inverse of ToAnthropicTools
func ParseAnthropicTools(tools []map[string]any) ([]ToolDefinition, error) {
	defs := make([]ToolDefinition, 0, len(tools))
	for i, tool := range tools {
		def, err := parseDeclaration(tool, "input_schema")
		if err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParseGeminiTools is the inverse of ToGeminiTools
func ParseGeminiTools(tools []map[string]any) ([]ToolDefinition, error) {
	var defs []ToolDefinition
	for _, tool := range tools {
		decls, _ := tool["functionDeclarations"].([]map[string]any)
		if decls == nil {
			// Shape after a JSON round trip
			raw, _ := tool["functionDeclarations"].([]any)
			for _, d := range raw {
				if m, ok := d.(map[string]any); ok {
					decls = append(decls, m)
				}
			}
		}
		for i, decl := range decls {
			def, err := parseDeclaration(decl, "parameters")
			if err != nil {
				return nil, fmt.Errorf("declaration %d: %w", i, err)
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// parseDeclaration reads name, description and the schema under schemaKey.
// Parameters come back sorted by name since JSON objects carry no order.
func parseDeclaration(decl map[string]any, schemaKey string) (ToolDefinition, error) {
	name, _ := decl["name"].(string)
	if name == "" {
		return ToolDefinition{}, fmt.Errorf("missing name")
	}
	def := ToolDefinition{Name: name}
	def.Description, _ = decl["description"].(string)

	schema, _ := decl[schemaKey].(map[string]any)
	if schema == nil {
		return def, nil
	}
	properties, _ := schema["properties"].(map[string]any)
	required := stringList(schema["required"])

	names := make([]string, 0, len(properties))
	for n := range properties {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		prop, _ := properties[n].(map[string]any)
		p := llmtypes.Parameter{
			Name:     n,
			Type:     parseType(prop["type"]),
			Required: slices.Contains(required, n),
			Enum:     stringList(prop["enum"]),
			Default:  prop["default"],
		}
		p.Description, _ = prop["description"].(string)
		if items, ok := prop["items"].(map[string]any); ok {
			p.Items = parseType(items["type"])
		}
		def.Parameters = append(def.Parameters, p)
	}
	return def, nil
}

func parseType(v any) llmtypes.ParamType {
	s, _ := v.(string)
	return llmtypes.ParamType(strings.ToLower(s))
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
