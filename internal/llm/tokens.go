package llm

// charsPerToken is the heuristic ratio used when no vendor tokenizer is available
const charsPerToken = 4

// EstimateTokens approximates the token count of text as ceil(bytes/4).
// It is non-negative, zero for empty text, and monotonic in length.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}
