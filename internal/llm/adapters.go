package llm

// adaptOpenAI passes the canonical message list through unchanged, as a
// wire-ready slice of role/content pairs. Used by every OpenAI-family
// backend: the two local servers and the four OpenAI-compatible cloud
// providers.
func adaptOpenAI(messages []Message) []map[string]string {
	out := make([]map[string]string, len(messages))
	for i, m := range messages {
		out[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	return out
}

// adaptAnthropic extracts the (at most one, leading) system message into
// its own field, since Anthropic's API takes system prompt separately
// from the turn-by-turn conversation.
func adaptAnthropic(messages []Message) (system string, rest []map[string]string) {
	for _, m := range messages {
		if m.Role == "system" && system == "" {
			system = m.Content
			continue
		}
		rest = append(rest, map[string]string{"role": m.Role, "content": m.Content})
	}
	return system, rest
}

// geminiContent is one turn in Gemini's {role, parts} wire shape.
type geminiContent struct {
	Role  string              `json:"role,omitempty"`
	Parts []map[string]string `json:"parts"`
}

// adaptGemini extracts the system message into Gemini's separate
// "system instruction" slot, renames the assistant role to "model" (the
// only role name Gemini accepts for it), and wraps every remaining
// turn's content in {parts: [{text: content}]}.
func adaptGemini(messages []Message) (systemInstruction string, contents []geminiContent) {
	for _, m := range messages {
		if m.Role == "system" && systemInstruction == "" {
			systemInstruction = m.Content
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []map[string]string{{"text": m.Content}},
		})
	}
	return systemInstruction, contents
}

// singleUserMessage reports whether contents reduces to exactly one user
// turn, in which case Gemini's single-shot generateContent endpoint
// applies instead of priming a multi-turn chat session.
func singleUserMessage(contents []geminiContent) bool {
	if len(contents) != 1 {
		return false
	}
	return contents[0].Role == "user"
}

// mapParamsOpenAI translates canonical params to OpenAI-family spelling.
// repetition_penalty maps to frequency_penalty; there is no top_k.
func mapParamsOpenAI(p Params) map[string]any {
	out := map[string]any{}
	if p.Temperature != 0 {
		out["temperature"] = p.Temperature
	}
	if p.TopP != 0 {
		out["top_p"] = p.TopP
	}
	if p.RepetitionPenalty != 0 {
		out["frequency_penalty"] = p.RepetitionPenalty
	}
	if p.MaxTokens > 0 {
		out["max_tokens"] = p.MaxTokens
	}
	return out
}

// mapParamsLocal translates canonical params to the local-server
// (Ollama/LM Studio) spelling used under an "options" sub-object.
func mapParamsLocal(p Params) map[string]any {
	out := map[string]any{}
	if p.Temperature != 0 {
		out["temperature"] = p.Temperature
	}
	if p.TopP != 0 {
		out["top_p"] = p.TopP
	}
	if p.TopK != 0 {
		out["top_k"] = p.TopK
	}
	if p.RepetitionPenalty != 0 {
		out["repeat_penalty"] = p.RepetitionPenalty
	}
	if p.MaxTokens > 0 {
		out["num_predict"] = p.MaxTokens
	}
	return out
}

// mapParamsAnthropic translates canonical params to Anthropic's
// spelling. Anthropic has no repetition-penalty equivalent; it is
// dropped.
func mapParamsAnthropic(p Params) map[string]any {
	out := map[string]any{}
	if p.Temperature != 0 {
		out["temperature"] = p.Temperature
	}
	if p.TopP != 0 {
		out["top_p"] = p.TopP
	}
	if p.TopK != 0 {
		out["top_k"] = p.TopK
	}
	out["max_tokens"] = p.MaxTokens
	if out["max_tokens"] == 0 {
		out["max_tokens"] = 1024
	}
	return out
}

// mapParamsGemini translates canonical params to Gemini's camelCase
// generationConfig spelling.
func mapParamsGemini(p Params) map[string]any {
	out := map[string]any{}
	if p.Temperature != 0 {
		out["temperature"] = p.Temperature
	}
	if p.TopP != 0 {
		out["topP"] = p.TopP
	}
	if p.TopK != 0 {
		out["topK"] = p.TopK
	}
	if p.MaxTokens > 0 {
		out["maxOutputTokens"] = p.MaxTokens
	}
	return out
}
