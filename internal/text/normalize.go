// Package text turns chapter markup into a cleaned, whitespace-tokenized word
// stream and slices it into sentence-aligned chunks for enrichment.
package text

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// blockTags are the elements whose text is surfaced, in document order.
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true,
	"li": true, "blockquote": true, "div": true,
}

var headingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true,
}

var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "noscript": true,
}

// Extraction is the normalized output for one chapter document.
type Extraction struct {
	Words []string
	Title string // First heading's text, a candidate chapter title
}

// Extract parses markup, gathers block-level text in document order, strips
// licensing boilerplate, and splits into non-empty whitespace tokens.
func Extract(markup []byte) (*Extraction, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	var blocks []string
	var title string
	var cur strings.Builder

	// flush ends the current inline run, emitting it as its own block. Runs
	// are flushed at every block-element boundary so text interleaved with
	// nested blocks keeps its document order.
	flush := func() {
		if text := strings.Join(strings.Fields(cur.String()), " "); text != "" {
			blocks = append(blocks, text)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
			if blockTags[n.Data] {
				if title == "" && headingTags[n.Data] {
					title = inlineText(n)
				}
				flush()
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				flush()
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	flush()

	joined := strings.Join(blocks, "\n\n")
	cleaned := StripBoilerplate(joined)

	return &Extraction{
		Words: strings.Fields(cleaned),
		Title: title,
	}, nil
}

// inlineText collects the text directly inside a block element, without
// descending into nested block elements (those produce their own blocks).
func inlineText(n *html.Node) string {
	var b strings.Builder

	var walk func(c *html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			if blockTags[c.Data] || skipTags[c.Data] {
				return
			}
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
