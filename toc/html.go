package toc

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/robertmeta/blog-cli/model"
)

var headingLevels = map[atom.Atom]int{
	atom.H1: 1,
	atom.H2: 2,
	atom.H3: 3,
	atom.H4: 4,
	atom.H5: 5,
	atom.H6: 6,
}

// FromHTML extracts the outline of a rendered article. Headings keep their
// id attribute; headings without one are slugged from their text.
func FromHTML(r io.Reader, conv Convention) ([]model.Section, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	headings := collectHeadings(nil, doc)
	ids := headingIDs(headings)

	sections := []model.Section{}
	for i, h := range headings {
		depth, ok := conv.Depth(headingLevels[h.DataAtom])
		if !ok {
			continue
		}
		label := strings.Join(strings.Fields(nodeText(h)), " ")
		sections = append(sections, model.Section{ID: ids[i], Text: label, Depth: depth})
	}
	return sections, nil
}

// AnchorHTML returns the HTML fragment src with an id on every heading. The
// ids are the ones FromHTML reports, so the outline of the result links to
// its headings.
func AnchorHTML(src string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var headings []*html.Node
	for _, n := range nodes {
		headings = collectHeadings(headings, n)
	}
	for i, id := range headingIDs(headings) {
		if attr(headings[i], "id") == "" {
			setAttr(headings[i], "id", id)
		}
	}

	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("failed to render HTML: %w", err)
		}
	}
	return b.String(), nil
}

// collectHeadings appends the heading elements under n in document order.
func collectHeadings(headings []*html.Node, n *html.Node) []*html.Node {
	if n.Type == html.ElementNode {
		if _, ok := headingLevels[n.DataAtom]; ok {
			return append(headings, n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		headings = collectHeadings(headings, c)
	}
	return headings
}

// headingIDs returns the id of each heading. Existing ids are reserved
// first so generated slugs never collide with them.
func headingIDs(headings []*html.Node) []string {
	slugger := NewSlugger()
	for _, h := range headings {
		if id := attr(h, "id"); id != "" {
			slugger.Reserve(id)
		}
	}

	ids := make([]string, len(headings))
	for i, h := range headings {
		ids[i] = attr(h, "id")
		if ids[i] == "" {
			ids[i] = slugger.Slug(strings.Join(strings.Fields(nodeText(h)), " "))
		}
	}
	return ids
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
