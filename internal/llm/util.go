package llm

import "strings"

// CleanJSONBlock strips a surrounding markdown code fence from a model reply.
// A short first line after the opening fence is treated as a language tag.
// Text without a leading fence is returned trimmed.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || isLanguageTag(tag) {
			body = body[nl+1:]
		}
	} else if lower := strings.ToLower(body); strings.HasPrefix(lower, "json") {
		body = body[len("json"):]
	}

	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isLanguageTag(s string) bool {
	return len(s) < 20 && !strings.ContainsAny(s, " {[\"")
}

// EstimateTokens approximates a token count as one token per four bytes.
// It is used when a provider omits usage metadata.
func EstimateTokens(text string) int {
	return len(text) / 4
}
