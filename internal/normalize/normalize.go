// Package normalize turns rendered HTML into the marked-up plain text the
// extraction prompt expects.
package normalize

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// NoTitle is used when the document has no <title>.
const NoTitle = "No title found"

// noLinkText stands in for anchors without visible text.
const noLinkText = "NO_TEXT"

// Page is a normalized document.
type Page struct {
	Title string
	// Text is "PAGE TITLE: {title}\n\n{body}".
	Text   string
	Body   string
	Links  int
	Images int
}

// Normalize parses markup and rewrites its body into text. Images are
// replaced with "IMAGE_ASSET: alt | Source: url" markers before links are
// replaced with "[HYPERLINK: text -> url]" markers, so an image inside an
// anchor survives as part of the link text. Relative URLs are resolved
// against baseURL when it parses.
func Normalize(markup, baseURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var base *url.URL
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil {
			base = u
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = NoTitle
	}

	page := &Page{Title: title}
	body := doc.Find("body").First()
	if body.Length() > 0 {
		body.Find("script, style, noscript").Remove()

		body.Find("img").Each(func(_ int, img *goquery.Selection) {
			src := resolve(base, img.AttrOr("src", ""))
			alt := img.AttrOr("alt", "")
			img.ReplaceWithNodes(textNode(fmt.Sprintf("IMAGE_ASSET: %s | Source: %s", alt, src)))
			page.Images++
		})

		// Re-query: image replacement changed the tree under the anchors.
		body.Find("a").Each(func(_ int, a *goquery.Selection) {
			href := resolve(base, a.AttrOr("href", ""))
			text := strings.TrimSpace(a.Text())
			if text == "" {
				text = noLinkText
			}
			a.ReplaceWithNodes(textNode(fmt.Sprintf("[HYPERLINK: %s -> %s]", text, href)))
			page.Links++
		})

		page.Body = cleanLines(collectText(body.Nodes[0]))
	}

	page.Text = fmt.Sprintf("PAGE TITLE: %s\n\n%s", page.Title, page.Body)
	return page, nil
}

// resolve makes ref absolute against base. Unparseable references are
// returned unchanged.
func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// collectText joins every text node under n with newlines, in document
// order. Comments are skipped.
func collectText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, "\n")
}

// cleanLines trims every line and drops the blank ones.
func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
