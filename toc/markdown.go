package toc

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/robertmeta/blog-cli/model"
)

// Convention selects which heading levels map onto outline depths 1..3.
type Convention int

const (
	// H2ToH4 treats H1 as the page title: H2->1, H3->2, H4->3.
	H2ToH4 Convention = iota
	// H1ToH3 maps H1..H3 straight onto 1..3.
	H1ToH3
)

// ParseConvention accepts "h2-h4" or "h1-h3".
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "h2-h4":
		return H2ToH4, nil
	case "h1-h3":
		return H1ToH3, nil
	}
	return H2ToH4, fmt.Errorf("unknown heading convention %q (expected h2-h4 or h1-h3)", s)
}

// Depth maps a heading level to an outline depth.
func (c Convention) Depth(level int) (int, bool) {
	d := level
	if c == H2ToH4 {
		d = level - 1
	}
	if d < 1 || d > 3 {
		return 0, false
	}
	return d, true
}

// Anchors is a goldmark extension that gives every heading an id using the
// same Slugger rules as FromMarkdown, so rendered anchors and outline ids
// always agree. Explicit {#id} attributes are kept.
var Anchors goldmark.Extender = anchors{}

type anchors struct{}

func (anchors) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithAttribute(),
		parser.WithASTTransformers(util.Prioritized(headingAnchors{}, 100)),
	)
}

// headingAnchors assigns ids with a Slugger created per document.
type headingAnchors struct{}

func (headingAnchors) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	src := reader.Source()
	var headings []*ast.Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering {
			headings = append(headings, h)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	slugger := NewSlugger()
	for _, h := range headings {
		if id, ok := explicitID(h); ok {
			slugger.Reserve(id)
		}
	}
	for _, h := range headings {
		if _, ok := explicitID(h); ok {
			continue
		}
		h.SetAttributeString("id", []byte(slugger.Slug(HeadingText(h, src))))
	}
}

func explicitID(h *ast.Heading) (string, bool) {
	v, ok := h.AttributeString("id")
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case []byte:
		return string(id), true
	case string:
		return id, true
	}
	return "", false
}

// HeadingText returns the plain text of a heading, gathered from all of its
// inline descendants.
func HeadingText(h *ast.Heading, src []byte) string {
	var b strings.Builder
	gatherText(h, src, &b)
	return strings.TrimSpace(b.String())
}

func gatherText(n ast.Node, src []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.Label(src))
		case *ast.RawHTML:
		default:
			gatherText(c, src, b)
		}
	}
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM, Anchors))
}

// FromMarkdown extracts the outline of a markdown document. Every heading
// consumes a slug, even the ones outside the convention's depth range, so
// ids match the rendered page. The result is rebuilt from scratch on every
// call.
func FromMarkdown(src []byte, conv Convention) []model.Section {
	doc := newMarkdown().Parser().Parse(text.NewReader(src))
	return FromAST(doc, src, conv)
}

// FromAST extracts the outline of a document parsed by a goldmark instance
// that uses the Anchors extension.
func FromAST(doc ast.Node, src []byte, conv Convention) []model.Section {
	sections := []model.Section{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		if depth, ok := conv.Depth(h.Level); ok {
			id, _ := explicitID(h)
			sections = append(sections, model.Section{
				ID:    id,
				Text:  HeadingText(h, src),
				Depth: depth,
			})
		}
		return ast.WalkSkipChildren, nil
	})
	return sections
}
