package conv

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/inbucket/html2text"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags
	textPolicy = bluemonday.UGCPolicy()
)

// MarkdownToHTML renders md and keeps only user-content safe markup.
func MarkdownToHTML(md []byte) string {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse(md), renderer)

	return string(textPolicy.SanitizeBytes(unsafeHTML))
}

// MarkdownToText flattens markdown into plain text for memory extraction.
func MarkdownToText(md []byte) (string, error) {
	return HTMLToText(MarkdownToHTML(md))
}

// HTMLToText drops scripts, styles and link targets and returns readable text.
func HTMLToText(s string) (string, error) {
	text, err := html2text.FromString(textPolicy.Sanitize(s), html2text.Options{
		OmitLinks:    true,
		PrettyTables: true,
	})
	if err != nil {
		return "", fmt.Errorf("html to text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// DocumentToText picks a converter by file extension. Unknown extensions
// are treated as plain text.
func DocumentToText(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return MarkdownToText(data)
	case ".html", ".htm":
		return HTMLToText(string(data))
	default:
		return strings.TrimSpace(string(data)), nil
	}
}
