package llmtypes

import "unicode/utf8"

// ClipBytes returns the longest prefix of s that fits in n bytes without
// splitting a UTF-8 sequence
func ClipBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
