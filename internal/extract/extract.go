// Package extract converts a captured page's HTML into agent-readable
// Markdown and plain text. Content is scoped to the page's main-content
// region first (semantic landmarks, then boilerplate-filtered body),
// sanitized, and only then converted.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result is one extraction.
type Result struct {
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
	Title    string `json:"title"`
}

// Extractor turns raw page HTML into sanitized Markdown and text.
type Extractor struct {
	md       *converter.Converter
	sanitize *bluemonday.Policy
	logger   *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitize: bluemonday.UGCPolicy(),
		logger:   logger,
	}
}

// FromHTML extracts the main-content region of one page. pageURL resolves
// relative links in the Markdown output.
func (e *Extractor) FromHTML(rawHTML, pageURL string) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse: %w", err)
	}

	title := findTitle(doc)
	content := contentRegion(doc)

	rendered := e.sanitize.Sanitize(renderNodes(content))
	md, err := e.md.ConvertString(rendered, converter.WithDomain(pageURL))
	if err != nil {
		return nil, fmt.Errorf("extract: markdown: %w", err)
	}

	var texts []string
	for _, n := range content {
		if t := collectText(n); t != "" {
			texts = append(texts, t)
		}
	}

	return &Result{
		Markdown: strings.TrimSpace(md),
		Text:     strings.Join(texts, "\n\n"),
		Title:    title,
	}, nil
}

// contentRegion returns the nodes holding the page's content: semantic
// landmarks when present, the boilerplate-filtered body otherwise.
func contentRegion(doc *html.Node) []*html.Node {
	if landmarks := findLandmarks(doc); len(landmarks) > 0 {
		var kept []*html.Node
		for _, n := range landmarks {
			if !isBoilerplate(n) {
				kept = append(kept, n)
			}
		}
		if len(kept) > 0 {
			return kept
		}
	}
	if body := findBody(doc); body != nil {
		return []*html.Node{body}
	}
	return []*html.Node{doc}
}

// findLandmarks collects main/article elements and role=main containers,
// skipping nested ones.
func findLandmarks(doc *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Main || n.DataAtom == atom.Article || attrVal(n, "role") == "main" {
				out = append(out, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// boilerplateTokens mark navigation chrome and ads by class or id.
var boilerplateTokens = []string{
	"nav", "menu", "sidebar", "footer", "header", "banner",
	"advert", "cookie", "consent", "social", "share", "comment",
}

func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Aside:
		return true
	}
	hint := strings.ToLower(attrVal(n, "class") + " " + attrVal(n, "id"))
	for _, tok := range boilerplateTokens {
		if strings.Contains(hint, tok) {
			return true
		}
	}
	return false
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}

func findTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			title = strings.TrimSpace(collectText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// collectText gathers visible text, skipping script/style subtrees.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func renderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			continue
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}
