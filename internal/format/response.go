package format

import (
	"encoding/json"
)

// ConvertGoogleToOpenAI converts Upstream's generateContent response into
// an OpenAI-shaped chat completion response, matching the source
// implementation's handling of text, thinking, and functionCall parts and
// its STOP/MAX_TOKENS/TOOL_USE finish-reason mapping.
func ConvertGoogleToOpenAI(google *GoogleResponse, model string, createdUnix int64) *ChatCompletionResponse {
	candidates, usage := google.candidatesAndUsage()

	var first GoogleCandidate
	if len(candidates) > 0 {
		first = candidates[0]
	}

	var parts []GooglePart
	if first.Content != nil {
		parts = first.Content.Parts
	}

	var textContent string
	var toolCalls []ToolCall
	hasToolCalls := false

	for _, part := range parts {
		switch {
		case part.Text != "" && part.Thought:
			// Thinking text is surfaced to the caller-visible content
			// only when it also carries a signature; otherwise it's
			// dropped from the OpenAI-shaped response entirely, since
			// OpenAI's wire format has no thinking-block slot.
			continue
		case part.Text != "":
			textContent += part.Text
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + randomHex(12)
			}
			argsJSON, _ := json.Marshal(part.FunctionCall.Args)
			toolCalls = append(toolCalls, ToolCall{
				ID:   id,
				Type: "function",
				Function: ToolCallFunc{
					Name:      part.FunctionCall.Name,
					Arguments: string(argsJSON),
				},
			})
			hasToolCalls = true
		}
	}

	finishReason := first.FinishReason
	var stopReason string
	switch {
	case finishReason == "MAX_TOKENS":
		stopReason = "length"
	case finishReason == "TOOL_USE" || hasToolCalls:
		stopReason = "tool_calls"
	default:
		stopReason = "stop"
	}

	var promptTokens, cachedTokens, completionTokens int
	if usage != nil {
		promptTokens = usage.PromptTokenCount
		cachedTokens = usage.CachedContentTokenCount
		completionTokens = usage.CandidatesTokenCount
	}

	message := ResponseMessage{Role: "assistant"}
	if textContent != "" {
		message.Content = &textContent
	}
	if len(toolCalls) > 0 {
		message.ToolCalls = toolCalls
	}

	return &ChatCompletionResponse{
		ID:      "chatcmpl-" + randomHex(16),
		Object:  "chat.completion",
		Created: createdUnix,
		Model:   model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      message,
			FinishReason: stopReason,
		}},
		Usage: ChatUsage{
			PromptTokens:     promptTokens - cachedTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens - cachedTokens + completionTokens,
		},
	}
}

// ParseGoogleResponse unmarshals a raw Upstream response body.
func ParseGoogleResponse(body []byte) (*GoogleResponse, error) {
	var resp GoogleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
