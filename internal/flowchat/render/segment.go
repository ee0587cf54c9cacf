// Package render splits assistant messages into prose and fenced code
// blocks and renders them for the terminal, the clipboard and the browser
// preview.
package render

import (
	"regexp"
	"strings"
)

// DefaultLanguage labels code blocks whose fence names no language.
const DefaultLanguage = "code"

// fence matches a complete ``` block, shortest first.
var fence = regexp.MustCompile("(?s)```.*?```")

// fenceHeader matches the language word on the opening fence line.
var fenceHeader = regexp.MustCompile(`^([\w.+#-]*)[ \t]*\r?\n`)

// SegmentKind distinguishes prose from code.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentCode
)

// Segment is a run of prose or a single code block of a message.
type Segment struct {
	Kind     SegmentKind
	Text     string // prose, or the code without fences
	Language string // code segments only
}

// Block is a fenced code block with its position among the message's blocks.
type Block struct {
	Index    int
	Language string
	Code     string
}

// Split cuts content into text and code segments in order. Unterminated
// fences stay part of the text; empty text segments are dropped.
func Split(content string) []Segment {
	var segments []Segment
	last := 0
	for _, loc := range fence.FindAllStringIndex(content, -1) {
		if text := content[last:loc[0]]; text != "" {
			segments = append(segments, Segment{Kind: SegmentText, Text: text})
		}
		lang, code := parseFence(content[loc[0]:loc[1]])
		segments = append(segments, Segment{Kind: SegmentCode, Text: code, Language: lang})
		last = loc[1]
	}
	if text := content[last:]; text != "" {
		segments = append(segments, Segment{Kind: SegmentText, Text: text})
	}
	return segments
}

func parseFence(block string) (string, string) {
	inner := strings.TrimSuffix(strings.TrimPrefix(block, "```"), "```")
	lang := DefaultLanguage
	if m := fenceHeader.FindStringSubmatch(inner); m != nil {
		if m[1] != "" {
			lang = m[1]
		}
		inner = inner[len(m[0]):]
	}
	return lang, strings.TrimSuffix(inner, "\n")
}

// Blocks returns the code blocks of content.
func Blocks(content string) []Block {
	var blocks []Block
	for _, seg := range Split(content) {
		if seg.Kind == SegmentCode {
			blocks = append(blocks, Block{Index: len(blocks), Language: seg.Language, Code: seg.Text})
		}
	}
	return blocks
}

// CanPreview reports whether the block can be shown in the browser preview.
func (b Block) CanPreview() bool {
	switch strings.ToLower(b.Language) {
	case "html", "css", "javascript", "js":
		return true
	}
	return false
}

// SpeakablePrefix returns the text before the first code fence, trimmed.
func SpeakablePrefix(content string) string {
	before, _, _ := strings.Cut(content, "```")
	return strings.TrimSpace(before)
}
