// Package classify decides which flow handles a text-only chat turn.
package classify

import "strings"

var codingKeywords = []string{
	"code", "function", "javascript", "python", "react", "html", "css",
	"algorithm", "component", "script", "next.js", "build", "how to",
	"show me", "fix", "debug", "create", "write", "implement", "generate",
	"c#", "java", "typescript", "go", "json",
}

var questionPrefixes = []string{"what is", "how does", "explain", "compare"}

// IsCodingRequest reports whether text should go to the code-generation flow.
//
// Turns with an attached file are never coding requests; the file flows take
// precedence. Keywords match as plain substrings, so "go" also matches "good"
// and "script" matches "description". That imprecision is accepted.
func IsCodingRequest(text string, hasFile bool) bool {
	if hasFile {
		return false
	}

	lower := strings.ToLower(text)
	hasCodingKeyword := containsAny(lower, codingKeywords)
	isQuestionAboutCode := hasPrefixAny(lower, questionPrefixes) && hasCodingKeyword

	return hasCodingKeyword || isQuestionAboutCode
}

// Keywords returns a copy of the coding keyword set.
func Keywords() []string {
	return append([]string(nil), codingKeywords...)
}

// QuestionPrefixes returns a copy of the question prefix set.
func QuestionPrefixes() []string {
	return append([]string(nil), questionPrefixes...)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
