// Package format converts between the OpenAI chat-completions wire shape
// the gateway's HTTP front door accepts and the Google Cloud Code
// generateContent shape Upstream expects, in both directions.
package format

import "encoding/json"

// ChatMessage is one OpenAI-shaped message. Content is left as raw JSON
// since it may be a plain string or an array of typed content blocks;
// callers use ParseContent to get a uniform []ContentBlock view.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

// ToolCall is an OpenAI-shaped tool invocation, either issued by the model
// (on an assistant message) or referenced by a tool-result message.
type ToolCall struct {
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function ToolCallFunc  `json:"function"`
}

// ToolCallFunc holds a tool call's function name and raw JSON arguments.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ContentBlock is the gateway's tagged-variant view of one element of a
// message's content array, normalized from either a plain string message
// or an OpenAI-style content block list.
type ContentBlock struct {
	Type             string
	Text             string
	Source           *ImageSource
	ImageURL         string
	Name             string
	Input            map[string]interface{}
	ID               string
	ToolUseID        string
	Content          interface{}
	Thinking         string
	Signature        string
	ThoughtSignature string
}

// ImageSource is an inline (base64) or remote (url) image reference.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Tool is an OpenAI-shaped tool/function declaration.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function body of a Tool.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ThinkingParam is the caller-supplied { "type": "enabled", "budget_tokens": N }
// hint OpenAI-shaped callers use to request an explicit thinking budget.
type ThinkingParam struct {
	BudgetTokens int `json:"budget_tokens,omitempty"`
}

// ChatCompletionRequest is the POST /v1/chat/completions request body.
type ChatCompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []ChatMessage  `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	Stop        interface{}    `json:"stop,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Tools       []Tool         `json:"tools,omitempty"`
	ToolChoice  interface{}    `json:"tool_choice,omitempty"`
	Thinking    *ThinkingParam `json:"thinking,omitempty"`
}

// ChatCompletionResponse is the POST /v1/chat/completions response body.
type ChatCompletionResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []ChatChoice   `json:"choices"`
	Usage   ChatUsage      `json:"usage"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is an assistant-role response message.
type ResponseMessage struct {
	Role      string      `json:"role"`
	Content   *string     `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
}

// ChatUsage is the token-accounting block of a chat completion response.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GoogleContent is one turn of a Google generateContent conversation.
type GoogleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GooglePart `json:"parts"`
}

// GooglePart is one content part within a GoogleContent turn.
type GooglePart struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	FunctionCall     *GoogleFuncCall   `json:"functionCall,omitempty"`
	FunctionResponse *GoogleFuncResult `json:"functionResponse,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
	FileData         *FileData         `json:"fileData,omitempty"`
}

// GoogleFuncCall is Google's functionCall part shape.
type GoogleFuncCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
	ID   string                 `json:"id,omitempty"`
}

// GoogleFuncResult is Google's functionResponse part shape.
type GoogleFuncResult struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response,omitempty"`
	ID       string                 `json:"id,omitempty"`
}

// InlineData is a base64-encoded inline file (image, document, ...).
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData is a remote file reference.
type FileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

// GenerationConfig is the generationConfig block of a Google request.
type GenerationConfig struct {
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	StopSequences   []string        `json:"stopSequences,omitempty"`
	ThinkingConfig  *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig carries both the Claude (snake_case) and Gemini
// (camelCase) field names; only one set is ever populated for a given
// request, and omitempty drops the other.
type ThinkingConfig struct {
	IncludeThoughts bool `json:"include_thoughts,omitempty"`
	ThinkingBudget  int  `json:"thinking_budget,omitempty"`

	IncludeThoughtsGemini bool `json:"includeThoughts,omitempty"`
	ThinkingBudgetGemini  int  `json:"thinkingBudget,omitempty"`
}

// GoogleTool wraps a set of function declarations.
type GoogleTool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration is one Google-shaped tool declaration.
type FunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// GoogleRequest is the inner "request" object of a generateContent call.
type GoogleRequest struct {
	Contents          []GoogleContent   `json:"contents"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *GoogleContent    `json:"systemInstruction,omitempty"`
	Tools             []GoogleTool      `json:"tools,omitempty"`
	SessionID         string            `json:"sessionId,omitempty"`
}

// GenerateContentEnvelope is the full body Upstream's
// /v1internal:generateContent endpoint expects.
type GenerateContentEnvelope struct {
	Project   string        `json:"project"`
	Model     string        `json:"model"`
	Request   GoogleRequest `json:"request"`
	UserAgent string        `json:"userAgent"`
	RequestID string        `json:"requestId"`
}

// GoogleResponse is Upstream's generateContent response, which may or may
// not be wrapped in an outer "response" envelope depending on endpoint.
type GoogleResponse struct {
	Response      *googleResponseInner `json:"response,omitempty"`
	Candidates    []GoogleCandidate     `json:"candidates,omitempty"`
	UsageMetadata *UsageMetadata        `json:"usageMetadata,omitempty"`
}

type googleResponseInner struct {
	Candidates    []GoogleCandidate `json:"candidates,omitempty"`
	UsageMetadata *UsageMetadata    `json:"usageMetadata,omitempty"`
}

// GoogleCandidate is one response candidate.
type GoogleCandidate struct {
	Content      *GoogleContent `json:"content,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
}

// UsageMetadata is Upstream's token-accounting block.
type UsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount    int `json:"candidatesTokenCount,omitempty"`
	CachedContentTokenCount int `json:"cachedContentTokenCount,omitempty"`
}

// candidatesAndUsage unwraps whichever response shape was returned.
func (r *GoogleResponse) candidatesAndUsage() ([]GoogleCandidate, *UsageMetadata) {
	if r.Response != nil {
		return r.Response.Candidates, r.Response.UsageMetadata
	}
	return r.Candidates, r.UsageMetadata
}
