package format

import (
	"encoding/json"
	"testing"
)

func strMsg(role, content string) ChatMessage {
	raw, _ := json.Marshal(content)
	return ChatMessage{Role: role, Content: raw}
}

func TestConvertOpenAIToGoogle_SystemInstruction(t *testing.T) {
	messages := []ChatMessage{
		strMsg("system", "You are a helpful assistant."),
		strMsg("user", "Hello"),
	}

	contents, sysInstr := ConvertOpenAIToGoogle(messages, "claude-sonnet-4.5")

	if sysInstr == nil || len(sysInstr.Parts) != 1 || sysInstr.Parts[0].Text != "You are a helpful assistant." {
		t.Fatalf("expected system instruction to carry the system message text, got %+v", sysInstr)
	}
	if len(contents) != 1 || contents[0].Role != "user" {
		t.Fatalf("expected exactly one user content turn, got %+v", contents)
	}
}

func TestConvertOpenAIToGoogle_AssistantRoleMapsToModel(t *testing.T) {
	messages := []ChatMessage{
		strMsg("user", "Hi"),
		strMsg("assistant", "Hello there"),
	}
	contents, _ := ConvertOpenAIToGoogle(messages, "gemini-2.5-pro")
	if len(contents) != 2 {
		t.Fatalf("expected two content turns, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("expected assistant role to map to \"model\", got %q", contents[1].Role)
	}
}

func TestConvertOpenAIToGoogle_EmptyPartsGetsPlaceholder(t *testing.T) {
	messages := []ChatMessage{strMsg("user", "")}
	contents, _ := ConvertOpenAIToGoogle(messages, "gemini-2.5-flash")
	if len(contents) != 1 || len(contents[0].Parts) != 1 || contents[0].Parts[0].Text != "." {
		t.Fatalf("expected a placeholder part for empty content, got %+v", contents)
	}
}

func TestConvertOpenAIToGoogle_ToolCallsOnAssistant(t *testing.T) {
	messages := []ChatMessage{
		{
			Role: "assistant",
			ToolCalls: []ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: ToolCallFunc{
					Name:      "get_weather",
					Arguments: `{"city":"Tokyo"}`,
				},
			}},
		},
	}
	contents, _ := ConvertOpenAIToGoogle(messages, "claude-sonnet-4.5-thinking")
	if len(contents) != 1 || len(contents[0].Parts) != 1 {
		t.Fatalf("expected one content turn with one part, got %+v", contents)
	}
	fc := contents[0].Parts[0].FunctionCall
	if fc == nil || fc.Name != "get_weather" || fc.ID != "call_1" {
		t.Fatalf("expected a functionCall part for the tool call, got %+v", fc)
	}
	if fc.Args["city"] != "Tokyo" {
		t.Errorf("expected tool call arguments to be parsed, got %+v", fc.Args)
	}
}

func TestConvertOpenAIToGoogle_ToolRoleBecomesFunctionResponse(t *testing.T) {
	raw, _ := json.Marshal("sunny, 20C")
	messages := []ChatMessage{
		{Role: "tool", ToolCallID: "call_1", Content: raw},
	}
	contents, _ := ConvertOpenAIToGoogle(messages, "claude-sonnet-4.5")
	if len(contents) != 1 || contents[0].Role != "user" {
		t.Fatalf("expected tool result to become a user-role content turn, got %+v", contents)
	}
	fr := contents[0].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "call_1" {
		t.Fatalf("expected functionResponse keyed by tool_call_id, got %+v", fr)
	}
	if fr.Response["result"] != "sunny, 20C" {
		t.Errorf("expected tool result text to carry through, got %+v", fr.Response)
	}
}

func TestBuildGenerateContentEnvelope_ClaudeThinkingBudgetBumpsMaxTokens(t *testing.T) {
	maxTokens := 100
	req := &ChatCompletionRequest{
		Model:     "claude-opus-4.5-thinking",
		Messages:  []ChatMessage{strMsg("user", "hi")},
		MaxTokens: &maxTokens,
		Thinking:  &ThinkingParam{BudgetTokens: 200},
	}
	env := BuildGenerateContentEnvelope(req, "my-project")

	tc := env.Request.GenerationConfig.ThinkingConfig
	if tc == nil || tc.ThinkingBudget != 200 {
		t.Fatalf("expected thinking budget to carry through, got %+v", tc)
	}
	if want := 200 + 8192; env.Request.GenerationConfig.MaxOutputTokens != want {
		t.Errorf("expected maxOutputTokens bumped to %d, got %d", want, env.Request.GenerationConfig.MaxOutputTokens)
	}
	if env.Project != "my-project" {
		t.Errorf("expected project id to carry through, got %q", env.Project)
	}
}

func TestBuildGenerateContentEnvelope_FixedWireValues(t *testing.T) {
	req := &ChatCompletionRequest{
		Model:    "gemini-2.5-flash",
		Messages: []ChatMessage{strMsg("user", "hi")},
	}
	env := BuildGenerateContentEnvelope(req, "proj")

	if env.UserAgent != "antigravity-litellm" {
		t.Errorf("expected the fixed userAgent literal, got %q", env.UserAgent)
	}
	if len(env.RequestID) != len("agent-")+32 || env.RequestID[:6] != "agent-" {
		t.Errorf("expected requestId shaped like agent-<32 hex chars>, got %q", env.RequestID)
	}
}

func TestBuildGenerateContentEnvelope_GeminiCapsMaxOutputTokens(t *testing.T) {
	big := 999999
	req := &ChatCompletionRequest{
		Model:     "gemini-2.5-pro",
		Messages:  []ChatMessage{strMsg("user", "hi")},
		MaxTokens: &big,
	}
	env := BuildGenerateContentEnvelope(req, "proj")
	if env.Request.GenerationConfig.MaxOutputTokens != 16384 {
		t.Errorf("expected Gemini maxOutputTokens capped at 16384, got %d", env.Request.GenerationConfig.MaxOutputTokens)
	}
}

func TestBuildGenerateContentEnvelope_ToolsAreSanitized(t *testing.T) {
	req := &ChatCompletionRequest{
		Model:    "claude-sonnet-4.5",
		Messages: []ChatMessage{strMsg("user", "hi")},
		Tools: []Tool{{
			Type: "function",
			Function: ToolFunction{
				Name: "search",
				Parameters: map[string]interface{}{
					"$schema": "http://json-schema.org/draft-07/schema#",
					"type":    "object",
				},
			},
		}},
	}
	env := BuildGenerateContentEnvelope(req, "proj")
	if len(env.Request.Tools) != 1 || len(env.Request.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("expected one tool declaration, got %+v", env.Request.Tools)
	}
	params := env.Request.Tools[0].FunctionDeclarations[0].Parameters
	if _, ok := params["$schema"]; ok {
		t.Errorf("expected tool parameters to be sanitized, got %+v", params)
	}
}
