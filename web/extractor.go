package web

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// NoContentSentinel is returned when the document has no body at all.
const NoContentSentinel = "No content found"

// TruncationMarker is appended when extracted text exceeds the bound.
const TruncationMarker = "... [content truncated]"

// DefaultExtractMaxChars bounds extracted text so tool results respect the
// model's context window.
const DefaultExtractMaxChars = 8000

// skippedElements never contribute text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
	"iframe":   true,
	"form":     true,
	"button":   true,
	"svg":      true,
}

// chromeMarkers are class/id substrings of common page chrome.
var chromeMarkers = []string{
	"nav", "menu", "sidebar", "footer", "header", "banner",
	"advert", "cookie", "breadcrumb", "popup",
}

// Extractor strips boilerplate markup and returns readable text.
type Extractor struct {
	maxChars int
}

// NewExtractor builds an Extractor with the given bound; <= 0 uses the default.
func NewExtractor(maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultExtractMaxChars
	}
	return &Extractor{maxChars: maxChars}
}

// ExtractMainText returns the readable text of an HTML document: the first
// matching main-content region (main, article, known content containers),
// falling back to the whole body, with whitespace collapsed and the result
// truncated to the configured bound.
func (e *Extractor) ExtractMainText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return NoContentSentinel
	}

	body := findElement(doc, "body")
	if body == nil {
		return NoContentSentinel
	}

	region := findMainRegion(body)
	if region == nil {
		region = body
	}

	text := collapseWhitespace(collectText(region))
	if text == "" {
		return NoContentSentinel
	}

	if len(text) > e.maxChars {
		cut := e.maxChars
		// Back up to a rune boundary so the cut never emits invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + TruncationMarker
	}
	return text
}

// findMainRegion walks the priority list of content containers and returns
// the first match, or nil.
func findMainRegion(body *html.Node) *html.Node {
	if n := findElement(body, "main"); n != nil {
		return n
	}
	if n := findElement(body, "article"); n != nil {
		return n
	}
	if n := findByAttr(body, "role", "main"); n != nil {
		return n
	}
	for _, marker := range []string{"main-content", "article-body", "post-content", "content"} {
		if n := findByClassOrID(body, marker); n != nil {
			return n
		}
	}
	return nil
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

func findByAttr(n *html.Node, key, value string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == key && a.Val == value {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByAttr(c, key, value); found != nil {
			return found
		}
	}
	return nil
}

func findByClassOrID(n *html.Node, marker string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if (a.Key == "class" || a.Key == "id") && strings.Contains(strings.ToLower(a.Val), marker) {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClassOrID(c, marker); found != nil {
			return found
		}
	}
	return nil
}

// collectText gathers text nodes, skipping non-content elements and nodes
// whose class/id marks them as page chrome.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if skippedElements[node.Data] {
				return
			}
			if isChrome(node) {
				return
			}
		}
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return sb.String()
}

func isChrome(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		val := strings.ToLower(a.Val)
		for _, marker := range chromeMarkers {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
