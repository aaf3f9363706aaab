package llmtypes

import "testing"

func TestMessageContent_String(t *testing.T) {
	tests := []struct {
		name    string
		content MessageContent
		want    string
	}{
		{"empty", MessageContent{}, ""},
		{"text", Text("hello"), "hello"},
		{"blocks", Blocks(
			TextBlock{Text: "a"},
			ToolUseBlock{Call: ToolCall{ID: "1", Name: "x"}},
			TextBlock{Text: "b"},
		), "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.content.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessage_ToolCallsAndResults(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: Blocks(
			TextBlock{Text: "thinking"},
			ToolUseBlock{Call: ToolCall{ID: "t1", Name: "lookup_person"}},
			ToolUseBlock{Call: ToolCall{ID: "t2", Name: "web_search"}},
		),
	}

	calls := msg.ToolCalls()
	if len(calls) != 2 || calls[0].ID != "t1" || calls[1].Name != "web_search" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}

	toolMsg := Message{Role: RoleTool, ToolCallID: "t1", Name: "lookup_person", Content: Text("{}")}
	results := toolMsg.ToolResults()
	if len(results) != 1 || results[0].ToolCallID != "t1" || results[0].Content != "{}" {
		t.Fatalf("unexpected tool results: %+v", results)
	}
}

func TestUsage_TotalIsSum(t *testing.T) {
	u := NewUsage(5, 3).Add(NewUsage(10, 2))
	if u.InputTokens != 15 || u.OutputTokens != 5 || u.TotalTokens != 20 {
		t.Errorf("unexpected usage %+v", u)
	}
}

func TestToolDefinition_JSONSchema(t *testing.T) {
	def := ToolDefinition{
		Name: "web_search",
		Parameters: []Parameter{
			{Name: "query", Type: TypeString, Required: true},
			{Name: "count", Type: TypeInteger, Default: 5},
			{Name: "tags", Type: TypeArray},
		},
	}

	schema := def.JSONSchema()
	props := schema["properties"].(map[string]any)
	if len(props) != 3 {
		t.Fatalf("expected 3 properties, got %d", len(props))
	}
	required := schema["required"].([]string)
	if len(required) != 1 || required[0] != "query" {
		t.Errorf("unexpected required list %v", required)
	}
	tags := props["tags"].(map[string]any)
	if items := tags["items"].(map[string]any); items["type"] != "string" {
		t.Errorf("array items should default to string, got %v", items["type"])
	}
}
