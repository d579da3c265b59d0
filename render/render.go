// Package render turns post bodies into HTML together with the outline
// of the rendered page.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/toc"
)

// Result is a rendered post body.
type Result struct {
	HTML     string          `json:"html"`
	Sections []model.Section `json:"sections"`
}

// Renderer renders markdown with GFM and heading anchors.
type Renderer struct {
	md     goldmark.Markdown
	conv   toc.Convention
	policy *bluemonday.Policy
}

// Option configures a Renderer.
type Option func(*config)

type config struct {
	unsafe bool
	conv   toc.Convention
}

// WithUnsafe lets raw HTML in the body through. Feed items carry HTML
// bodies and need it. The output is sanitized with the user generated
// content policy, and headings written as HTML get ids and outline entries
// like markdown headings do.
func WithUnsafe() Option {
	return func(c *config) { c.unsafe = true }
}

// WithConvention selects the heading levels that make up the outline.
func WithConvention(conv toc.Convention) Option {
	return func(c *config) { c.conv = conv }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	var c config
	for _, opt := range opts {
		opt(&c)
	}

	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM, extension.Footnote, toc.Anchors),
	}
	r := &Renderer{conv: c.conv}
	if c.unsafe {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
		r.policy = bluemonday.UGCPolicy()
	}
	r.md = goldmark.New(rendererOpts...)
	return r
}

// Render converts body to HTML. The outline ids are exactly the ids on the
// rendered headings.
func (r *Renderer) Render(body string) (Result, error) {
	src := []byte(body)
	doc := r.md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, src, doc); err != nil {
		return Result{}, fmt.Errorf("failed to render markdown: %w", err)
	}
	if r.policy == nil {
		return Result{
			HTML:     buf.String(),
			Sections: toc.FromAST(doc, src, r.conv),
		}, nil
	}

	// Raw HTML headings are invisible to the markdown AST, so the outline
	// comes from the page itself.
	out, err := toc.AnchorHTML(r.policy.Sanitize(buf.String()))
	if err != nil {
		return Result{}, err
	}
	sections, err := toc.FromHTML(strings.NewReader(out), r.conv)
	if err != nil {
		return Result{}, err
	}
	return Result{HTML: out, Sections: sections}, nil
}
