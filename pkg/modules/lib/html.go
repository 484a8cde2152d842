package lib

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// HTMLLibrary is the name modules require the HTML inspector by.
const HTMLLibrary = "html"

// DOMStats summarizes the structure of a document.
type DOMStats struct {
	Title         string
	Elements      int
	MaxDepth      int
	Iframes       int
	Images        int
	ImagesNoAlt   int
	InlineScripts int
	InlineStyles  int
	Comments      int
	CommentsSize  int
	HiddenInputs  int
	ElementsByTag map[string]int
}

// HTMLInspector parses markup into DOMStats.
type HTMLInspector struct{}

// NewHTMLInspector creates an inspector.
func NewHTMLInspector() *HTMLInspector {
	return &HTMLInspector{}
}

// Inspect parses rawHTML and walks the resulting tree.
func (h *HTMLInspector) Inspect(rawHTML string) (*DOMStats, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	stats := &DOMStats{ElementsByTag: make(map[string]int)}
	walk(doc, 0, stats)
	stats.Title = extractTitle(doc)
	return stats, nil
}

// walk visits n and its descendants. depth counts element ancestors.
func walk(n *html.Node, depth int, stats *DOMStats) {
	switch n.Type {
	case html.CommentNode:
		stats.Comments++
		stats.CommentsSize += len(n.Data)
	case html.ElementNode:
		depth++
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
		tag := strings.ToLower(n.Data)
		stats.Elements++
		stats.ElementsByTag[tag]++

		if hasAttr(n, "style") {
			stats.InlineStyles++
		}

		switch tag {
		case "iframe":
			stats.Iframes++
		case "img":
			stats.Images++
			if !hasAttr(n, "alt") {
				stats.ImagesNoAlt++
			}
		case "script":
			if !hasAttr(n, "src") {
				stats.InlineScripts++
			}
		case "style":
			stats.InlineStyles++
		case "input":
			if strings.EqualFold(attr(n, "type"), "hidden") {
				stats.HiddenInputs++
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, depth, stats)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// extractTitle returns the text of the first <title> element
func extractTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if title != "" {
				return
			}
		}
	}
	traverse(doc)
	return title
}
