package client

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	boldRe     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	emphasisRe = regexp.MustCompile(`\*([^*]+)\*`)
	codeRe     = regexp.MustCompile("`([^`]+)`")
	orderedRe  = regexp.MustCompile(`^\d+\.\s+`)
)

// RenderMarkdown converts accumulated markdown-ish text into a basic HTML
// display representation: headings, emphasis, code spans, fenced code blocks,
// blockquotes, list items and paragraphs. It is a pure function of the whole
// accumulated text, so re-rendering after every chunk is deterministic and
// stable regardless of how the text was chunked.
func RenderMarkdown(text string) string {
	var out strings.Builder
	var paragraph []string
	listTag := "" // "ul", "ol" or ""
	inCode := false
	var codeLines []string

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out.WriteString("<p>")
		out.WriteString(renderInline(strings.Join(paragraph, " ")))
		out.WriteString("</p>\n")
		paragraph = nil
	}
	closeList := func() {
		if listTag != "" {
			fmt.Fprintf(&out, "</%s>\n", listTag)
			listTag = ""
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if inCode {
			if strings.HasPrefix(trimmed, "```") {
				out.WriteString("<pre><code>")
				out.WriteString(html.EscapeString(strings.Join(codeLines, "\n")))
				out.WriteString("</code></pre>\n")
				codeLines = nil
				inCode = false
			} else {
				codeLines = append(codeLines, line)
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```"):
			flushParagraph()
			closeList()
			inCode = true

		case trimmed == "":
			flushParagraph()
			closeList()

		case strings.HasPrefix(trimmed, "#"):
			flushParagraph()
			closeList()
			level := 0
			for level < len(trimmed) && trimmed[level] == '#' && level < 6 {
				level++
			}
			heading := strings.TrimSpace(trimmed[level:])
			fmt.Fprintf(&out, "<h%d>%s</h%d>\n", level, renderInline(heading), level)

		case strings.HasPrefix(trimmed, "> "):
			flushParagraph()
			closeList()
			fmt.Fprintf(&out, "<blockquote>%s</blockquote>\n", renderInline(trimmed[2:]))

		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flushParagraph()
			if listTag != "ul" {
				closeList()
				out.WriteString("<ul>\n")
				listTag = "ul"
			}
			fmt.Fprintf(&out, "<li>%s</li>\n", renderInline(trimmed[2:]))

		case orderedRe.MatchString(trimmed):
			flushParagraph()
			if listTag != "ol" {
				closeList()
				out.WriteString("<ol>\n")
				listTag = "ol"
			}
			item := orderedRe.ReplaceAllString(trimmed, "")
			fmt.Fprintf(&out, "<li>%s</li>\n", renderInline(item))

		default:
			closeList()
			paragraph = append(paragraph, trimmed)
		}
	}

	// An unterminated fence at end-of-stream renders as a code block; more
	// of it may still be arriving.
	if inCode {
		out.WriteString("<pre><code>")
		out.WriteString(html.EscapeString(strings.Join(codeLines, "\n")))
		out.WriteString("</code></pre>\n")
	}
	flushParagraph()
	closeList()

	return strings.TrimSuffix(out.String(), "\n")
}

// renderInline applies code span, bold and emphasis formatting to escaped
// text. Code spans are substituted first so their contents stay literal.
func renderInline(s string) string {
	escaped := html.EscapeString(s)
	escaped = codeRe.ReplaceAllString(escaped, "<code>$1</code>")
	escaped = boldRe.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = emphasisRe.ReplaceAllString(escaped, "<em>$1</em>")
	return escaped
}
