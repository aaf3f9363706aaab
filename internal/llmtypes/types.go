package llmtypes

import "strings"

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is one typed element of a block-structured message.
// Implementations: TextBlock, ToolUseBlock, ToolResultBlock.
type ContentBlock interface {
	BlockType() string
}

// TextBlock is a plain text block
type TextBlock struct {
	Text string
}

func (TextBlock) BlockType() string { return "text" }

// ToolUseBlock is a tool invocation emitted by the assistant
type ToolUseBlock struct {
	Call ToolCall
}

func (ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock carries the output of one tool invocation back to the model
type ToolResultBlock struct {
	ToolCallID string
	Name       string // Gemini correlates function responses by name
	Content    string
	IsError    bool
}

func (ToolResultBlock) BlockType() string { return "tool_result" }

// MessageContent is either plain text or a sequence of content blocks.
// The zero value is empty text.
type MessageContent struct {
	text   string
	blocks []ContentBlock
}

// Text creates text content
func Text(s string) MessageContent {
	return MessageContent{text: s}
}

// Blocks creates block content
func Blocks(blocks ...ContentBlock) MessageContent {
	return MessageContent{blocks: blocks}
}

// IsBlocks reports whether the content is block-structured
func (c MessageContent) IsBlocks() bool {
	return c.blocks != nil
}

// BlockList returns the blocks, or a single text block for text content
func (c MessageContent) BlockList() []ContentBlock {
	if c.blocks != nil {
		return c.blocks
	}
	if c.text == "" {
		return nil
	}
	return []ContentBlock{TextBlock{Text: c.text}}
}

// String flattens the content into its text parts
func (c MessageContent) String() string {
	if c.blocks == nil {
		return c.text
	}
	var sb strings.Builder
	for _, b := range c.blocks {
		if tb, ok := b.(TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// Message represents a chat message in vendor-neutral form
type Message struct {
	Role       Role
	Content    MessageContent
	Name       string // tool name for role="tool"
	ToolCallID string // correlation id for role="tool"
}

// ToolCalls returns the tool invocations carried by the message
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content.blocks {
		if tu, ok := b.(ToolUseBlock); ok {
			calls = append(calls, tu.Call)
		}
	}
	return calls
}

// ToolResults returns the tool results carried by the message.
// A plain role="tool" message yields a single result.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, b := range m.Content.blocks {
		if tr, ok := b.(ToolResultBlock); ok {
			results = append(results, tr)
		}
	}
	if len(results) == 0 && m.Role == RoleTool {
		results = append(results, ToolResultBlock{
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			Content:    m.Content.String(),
		})
	}
	return results
}

// NewTextMessage creates a text message with the given role
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: Text(text)}
}

// ToolCall represents a tool/function call from the LLM
type ToolCall struct {
	ID               string
	Name             string
	Arguments        map[string]any
	ThoughtSignature string // opaque Gemini value that must be echoed back
}

// Usage tracks token usage. TotalTokens is always InputTokens + OutputTokens.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// NewUsage builds a usage record with a consistent total
func NewUsage(in, out int) Usage {
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

// Add returns the sum of two usage records
func (u Usage) Add(o Usage) Usage {
	return NewUsage(u.InputTokens+o.InputTokens, u.OutputTokens+o.OutputTokens)
}

// Response is the normalized result of one provider call
type Response struct {
	Content      string
	Model        string
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
}

// HasToolCalls reports whether the model asked for tools
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ChatRequest is one vendor-neutral provider call
type ChatRequest struct {
	Messages    []Message
	Model       string // resolved by the adapter; empty means its default
	Temperature float64
	MaxTokens   int // 0 means the adapter default
	Tools       []ToolDefinition
}

// StreamChunk is an incremental unit of a streamed response.
// Usage, FinishReason and ToolCalls are only set on the final chunk.
type StreamChunk struct {
	Content      string
	IsFinal      bool
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
	MessageID    string // set by the orchestrator on its final chunk
}

// ParamType is a JSON-schema primitive type name
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Parameter declares one tool argument
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Default     any
	Items       ParamType // element type for arrays
}

// ToolDefinition is a vendor-neutral tool declaration
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// JSONSchema renders the parameter list as a JSON-schema object
func (d ToolDefinition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := []string{}
	for _, p := range d.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Type == TypeArray {
			items := p.Items
			if items == "" {
				items = TypeString
			}
			prop["items"] = map[string]any{"type": string(items)}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
