package render

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

// PreviewCSP is the Content-Security-Policy served with preview pages.
const PreviewCSP = "sandbox allow-scripts"

// ErrNoPreview is returned for blocks whose language cannot be previewed.
var ErrNoPreview = errors.New("code block cannot be previewed")

// PreviewDocument returns the HTML document rendered inside the preview frame.
func PreviewDocument(b Block) (string, error) {
	switch strings.ToLower(b.Language) {
	case "html":
		return b.Code, nil
	case "css":
		return "<style>" + b.Code + "</style>", nil
	case "javascript", "js":
		return "<script>" + b.Code + "</script>", nil
	default:
		return "", fmt.Errorf("%w: language %q", ErrNoPreview, b.Language)
	}
}

const previewPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Code Preview</title>
<style>html,body{margin:0;height:100%%}iframe{border:0;width:100%%;height:100%%}</style>
</head>
<body>
<iframe title="Code Preview" sandbox="allow-scripts" srcdoc="%s"></iframe>
</body>
</html>
`

// PreviewPage wraps the preview document in a page that runs it inside a
// sandboxed frame: scripts run, but without access to the embedding origin.
func PreviewPage(b Block) (string, error) {
	doc, err := PreviewDocument(b)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(previewPage, html.EscapeString(doc)), nil
}
