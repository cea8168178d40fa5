package format

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

// ConvertRole maps an OpenAI role to a Google content role.
func ConvertRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

// ParseContent normalizes a message's raw content field, which may be a
// plain JSON string or an array of typed content blocks, into a uniform
// []ContentBlock.
func ParseContent(raw json.RawMessage) []ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []ContentBlock{{Type: "text", Text: asString}}
	}

	var rawBlocks []map[string]interface{}
	if err := json.Unmarshal(raw, &rawBlocks); err != nil {
		return nil
	}

	blocks := make([]ContentBlock, 0, len(rawBlocks))
	for _, b := range rawBlocks {
		blocks = append(blocks, parseContentBlock(b))
	}
	return blocks
}

func parseContentBlock(b map[string]interface{}) ContentBlock {
	block := ContentBlock{}
	if t, ok := b["type"].(string); ok {
		block.Type = t
	}
	if t, ok := b["text"].(string); ok {
		block.Text = t
	}
	if t, ok := b["thinking"].(string); ok {
		block.Thinking = t
	}
	if t, ok := b["signature"].(string); ok {
		block.Signature = t
	}
	if t, ok := b["thoughtSignature"].(string); ok {
		block.ThoughtSignature = t
	}
	if t, ok := b["id"].(string); ok {
		block.ID = t
	}
	if t, ok := b["name"].(string); ok {
		block.Name = t
	}
	if t, ok := b["tool_use_id"].(string); ok {
		block.ToolUseID = t
	}
	if t, ok := b["input"].(map[string]interface{}); ok {
		block.Input = t
	}
	if t := b["content"]; t != nil {
		block.Content = t
	}

	if block.Type == "image_url" {
		if iu, ok := b["image_url"].(map[string]interface{}); ok {
			if u, ok := iu["url"].(string); ok {
				block.ImageURL = u
			}
		}
	}
	if src, ok := b["source"].(map[string]interface{}); ok {
		source := &ImageSource{}
		if t, ok := src["type"].(string); ok {
			source.Type = t
		}
		if t, ok := src["media_type"].(string); ok {
			source.MediaType = t
		}
		if t, ok := src["data"].(string); ok {
			source.Data = t
		}
		if t, ok := src["url"].(string); ok {
			source.URL = t
		}
		block.Source = source
	}

	return block
}

// ConvertContentToParts converts a normalized content block list to Google
// parts, per-model-family, handling text, image, image_url, tool_use,
// tool_result, and thinking blocks.
func ConvertContentToParts(content []ContentBlock, isClaude, isGemini bool) []GooglePart {
	parts := make([]GooglePart, 0, len(content))

	for _, block := range content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, GooglePart{Text: block.Text})
			}

		case "image":
			if block.Source == nil {
				continue
			}
			if block.Source.Type == "base64" {
				mimeType := block.Source.MediaType
				if mimeType == "" {
					mimeType = "image/jpeg"
				}
				parts = append(parts, GooglePart{InlineData: &InlineData{MimeType: mimeType, Data: block.Source.Data}})
			} else if block.Source.Type == "url" {
				mimeType := block.Source.MediaType
				if mimeType == "" {
					mimeType = "image/jpeg"
				}
				parts = append(parts, GooglePart{FileData: &FileData{MimeType: mimeType, FileURI: block.Source.URL}})
			}

		case "image_url":
			parts = append(parts, imagePartFromDataURL(block.ImageURL))

		case "tool_use":
			functionCall := &GoogleFuncCall{Name: block.Name, Args: block.Input}
			if isClaude && block.ID != "" {
				functionCall.ID = block.ID
			}
			part := GooglePart{FunctionCall: functionCall}
			if isGemini && block.ThoughtSignature != "" {
				part.ThoughtSignature = block.ThoughtSignature
			}
			parts = append(parts, part)

		case "tool_result":
			parts = append(parts, GooglePart{FunctionResponse: toolResultToFunctionResponse(block, isClaude)})

		case "thinking":
			if block.Signature != "" && len(block.Signature) >= config.MinSignatureLength {
				parts = append(parts, GooglePart{
					Text:             block.Thinking,
					Thought:          true,
					ThoughtSignature: block.Signature,
				})
			}
		}
	}

	return parts
}

func imagePartFromDataURL(dataURL string) GooglePart {
	const prefix = "data:"
	if len(dataURL) > len(prefix) && dataURL[:len(prefix)] == prefix {
		if comma := indexByte(dataURL, ','); comma != -1 {
			header := dataURL[len(prefix):comma]
			mimeType := header
			if semi := indexByte(header, ';'); semi != -1 {
				mimeType = header[:semi]
			}
			return GooglePart{InlineData: &InlineData{MimeType: mimeType, Data: dataURL[comma+1:]}}
		}
	}
	return GooglePart{FileData: &FileData{MimeType: "image/jpeg", FileURI: dataURL}}
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func toolResultToFunctionResponse(block ContentBlock, isClaude bool) *GoogleFuncResult {
	result := map[string]interface{}{"result": ""}

	switch c := block.Content.(type) {
	case string:
		result["result"] = c
	case []interface{}:
		var texts []string
		for _, item := range c {
			if m, ok := item.(map[string]interface{}); ok {
				if m["type"] == "text" {
					if t, ok := m["text"].(string); ok {
						texts = append(texts, t)
					}
				}
			}
		}
		joined := ""
		for i, t := range texts {
			if i > 0 {
				joined += "\n"
			}
			joined += t
		}
		result["result"] = joined
	}

	name := block.ToolUseID
	if name == "" {
		name = "unknown"
	}

	fr := &GoogleFuncResult{Name: name, Response: result}
	if isClaude && block.ToolUseID != "" {
		fr.ID = block.ToolUseID
	}
	return fr
}

// ConvertOpenAIToGoogle converts an OpenAI-shaped request into the Google
// contents/systemInstruction pair Upstream expects.
func ConvertOpenAIToGoogle(messages []ChatMessage, model string) ([]GoogleContent, *GoogleContent) {
	family := config.GetModelFamily(model)
	isClaude := family == config.ModelFamilyClaude
	isGemini := family == config.ModelFamilyGemini

	var contents []GoogleContent
	var systemInstruction *GoogleContent

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			blocks := ParseContent(msg.Content)
			var parts []GooglePart
			for _, b := range blocks {
				if b.Type == "" || b.Type == "text" {
					if b.Text != "" {
						parts = append(parts, GooglePart{Text: b.Text})
					}
				}
			}
			if len(parts) > 0 {
				systemInstruction = &GoogleContent{Parts: parts}
			}
			continue

		case "tool":
			contents = append(contents, GoogleContent{
				Role: "user",
				Parts: []GooglePart{{
					FunctionResponse: &GoogleFuncResult{
						Name:     toolResultName(msg.ToolCallID),
						Response: map[string]interface{}{"result": rawStringContent(msg.Content)},
					},
				}},
			})
			continue
		}

		blocks := ParseContent(msg.Content)
		parts := ConvertContentToParts(blocks, isClaude, isGemini)

		for _, tc := range msg.ToolCalls {
			var args map[string]interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			fc := &GoogleFuncCall{Name: tc.Function.Name, Args: args}
			if isClaude {
				fc.ID = tc.ID
			}
			parts = append(parts, GooglePart{FunctionCall: fc})
		}

		if len(parts) == 0 {
			utils.Warn("[format] empty parts array after conversion, inserting placeholder")
			parts = []GooglePart{{Text: "."}}
		}

		contents = append(contents, GoogleContent{Role: ConvertRole(msg.Role), Parts: parts})
	}

	return contents, systemInstruction
}

func toolResultName(toolCallID string) string {
	if toolCallID == "" {
		return "unknown"
	}
	return toolCallID
}

func rawStringContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// BuildGenerateContentEnvelope builds the full request body Upstream's
// generateContent endpoint expects, applying generation config, thinking
// config, and tool declarations from req.
func BuildGenerateContentEnvelope(req *ChatCompletionRequest, projectID string) *GenerateContentEnvelope {
	contents, systemInstruction := ConvertOpenAIToGoogle(req.Messages, req.Model)
	family := config.GetModelFamily(req.Model)
	isThinking := config.IsThinkingModel(req.Model)

	genConfig := &GenerationConfig{}
	if req.MaxTokens != nil {
		genConfig.MaxOutputTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		genConfig.Temperature = req.Temperature
	}
	if req.TopP != nil {
		genConfig.TopP = req.TopP
	}
	switch stop := req.Stop.(type) {
	case string:
		if stop != "" {
			genConfig.StopSequences = []string{stop}
		}
	case []interface{}:
		for _, s := range stop {
			if str, ok := s.(string); ok {
				genConfig.StopSequences = append(genConfig.StopSequences, str)
			}
		}
	}

	if isThinking {
		if family == config.ModelFamilyClaude {
			tc := &ThinkingConfig{IncludeThoughts: true}
			if req.Thinking != nil && req.Thinking.BudgetTokens > 0 {
				tc.ThinkingBudget = req.Thinking.BudgetTokens
				if genConfig.MaxOutputTokens > 0 && genConfig.MaxOutputTokens <= tc.ThinkingBudget {
					genConfig.MaxOutputTokens = tc.ThinkingBudget + config.ClaudeThinkingBudgetHeadroom
				}
			}
			genConfig.ThinkingConfig = tc
		} else {
			budget := config.DefaultThinkingBudget
			if req.Thinking != nil && req.Thinking.BudgetTokens > 0 {
				budget = req.Thinking.BudgetTokens
			}
			genConfig.ThinkingConfig = &ThinkingConfig{IncludeThoughtsGemini: true, ThinkingBudgetGemini: budget}
		}
	}

	if family == config.ModelFamilyGemini && genConfig.MaxOutputTokens > config.GeminiMaxOutputTokens {
		genConfig.MaxOutputTokens = config.GeminiMaxOutputTokens
	}

	googleRequest := GoogleRequest{
		Contents:          contents,
		GenerationConfig:  genConfig,
		SystemInstruction: systemInstruction,
		SessionID:         sessionIDFor(req.Messages),
	}

	if len(req.Tools) > 0 {
		decls := make([]FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			params := tool.Function.Parameters
			if params == nil {
				params = map[string]interface{}{"type": "object"}
			}
			decls = append(decls, FunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  SanitizeSchema(params),
			})
		}
		googleRequest.Tools = []GoogleTool{{FunctionDeclarations: decls}}
	}

	return &GenerateContentEnvelope{
		Project:   projectID,
		Model:     req.Model,
		Request:   googleRequest,
		UserAgent: "antigravity-litellm",
		RequestID: "agent-" + randomHex(16),
	}
}

func sessionIDFor(messages []ChatMessage) string {
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		blocks := ParseContent(m.Content)
		var text string
		for _, b := range blocks {
			text += b.Text
		}
		if len(text) > 500 {
			text = text[:500]
		}
		sum := sha256.Sum256([]byte(text))
		return hex.EncodeToString(sum[:])[:16]
	}
	return randomHex(8)
}

func randomHex(byteLength int) string {
	b := make([]byte, byteLength)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
