package llm

// BuildSummaryJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the model as a structured output constraint and
// also use it locally to validate what comes back.
func BuildSummaryJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary":       map[string]any{"type": "string", "minLength": 1},
			"document_type": map[string]any{"type": "string"},
		},
		"required": []string{"summary"},
	}
}
