package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCodingRequest(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		hasFile bool
		want    bool
	}{
		{name: "write a function", text: "Write a function to reverse a string", want: true},
		{name: "capital of France", text: "What is the capital of France?", want: false},
		{name: "question about code", text: "Explain how a Python decorator works", want: true},
		{name: "upper case keyword", text: "HTML TABLE PLEASE", want: true},
		{name: "multi-word keyword", text: "show me the weather", want: true},
		{name: "symbol keyword", text: "tell me about c#", want: true},
		{name: "substring false positive", text: "a short description", want: true},
		{name: "go inside good", text: "good morning", want: true},
		{name: "plain chat", text: "hello there, nice day", want: false},
		{name: "question without keyword", text: "compare apples and pears", want: false},
		{name: "empty", text: "", want: false},
		{name: "file attached with keyword", text: "Write a function", hasFile: true, want: false},
		{name: "file attached plain", text: "summarize this", hasFile: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCodingRequest(tt.text, tt.hasFile))
		})
	}
}

func TestIsCodingRequestIsDeterministic(t *testing.T) {
	inputs := []string{
		"Write a function to reverse a string",
		"What is the capital of France?",
		"explain recursion",
		"नमस्ते",
	}
	for _, in := range inputs {
		first := IsCodingRequest(in, false)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, IsCodingRequest(in, false), in)
		}
	}
}

func TestFileAlwaysWins(t *testing.T) {
	for _, kw := range Keywords() {
		assert.False(t, IsCodingRequest("please "+kw, true), kw)
		assert.True(t, IsCodingRequest("please "+kw, false), kw)
	}
}

func TestKeywordSetsAreCopies(t *testing.T) {
	k := Keywords()
	k[0] = "mutated"
	assert.Equal(t, "code", Keywords()[0])

	q := QuestionPrefixes()
	q[0] = "mutated"
	assert.Equal(t, "what is", QuestionPrefixes()[0])
}
