package render

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/toc"
)

const body = `# Title

## Intro

Some *text*.

## Intro

### Details with ` + "`code`" + `

## Custom {#my-anchor}

| a | b |
|---|---|
| 1 | 2 |
`

func TestRenderer_Render(t *testing.T) {
	res, err := New().Render(body)
	require.NoError(t, err)

	want := []model.Section{
		{ID: "intro", Text: "Intro", Depth: 1},
		{ID: "intro-1", Text: "Intro", Depth: 1},
		{ID: "details-with-code", Text: "Details with code", Depth: 2},
		{ID: "my-anchor", Text: "Custom", Depth: 1},
	}
	if diff := cmp.Diff(want, res.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, res.HTML, `<h2 id="intro">Intro</h2>`)
	assert.Contains(t, res.HTML, `<h2 id="intro-1">Intro</h2>`)
	assert.Contains(t, res.HTML, `<h2 id="my-anchor">Custom</h2>`)
	assert.Contains(t, res.HTML, "<table>")
}

func TestRenderer_OutlineMatchesRenderedPage(t *testing.T) {
	res, err := New().Render(body)
	require.NoError(t, err)

	fromHTML, err := toc.FromHTML(strings.NewReader(res.HTML), toc.H2ToH4)
	require.NoError(t, err)
	if diff := cmp.Diff(res.Sections, fromHTML); diff != "" {
		t.Errorf("outline from HTML differs (-markdown +html):\n%s", diff)
	}
	if diff := cmp.Diff(toc.FromMarkdown([]byte(body), toc.H2ToH4), res.Sections); diff != "" {
		t.Errorf("outline differs from FromMarkdown (-want +got):\n%s", diff)
	}
}

func TestRenderer_Convention(t *testing.T) {
	res, err := New(WithConvention(toc.H1ToH3)).Render("# Top\n\n## Sub\n\n#### Deep\n")
	require.NoError(t, err)

	want := []model.Section{
		{ID: "top", Text: "Top", Depth: 1},
		{ID: "sub", Text: "Sub", Depth: 2},
	}
	assert.Equal(t, want, res.Sections)
}

func TestRenderer_RawHTML(t *testing.T) {
	const htmlBody = "<p>from a feed</p>\n"

	safe, err := New().Render(htmlBody)
	require.NoError(t, err)
	assert.NotContains(t, safe.HTML, "<p>from a feed</p>")

	unsafe, err := New(WithUnsafe()).Render(htmlBody)
	require.NoError(t, err)
	assert.Contains(t, unsafe.HTML, "<p>from a feed</p>")
}

func TestRenderer_HTMLHeadings(t *testing.T) {
	res, err := New(WithUnsafe()).Render("<h2>Intro</h2>\n<p>x</p>\n<h3>Details</h3>\n")
	require.NoError(t, err)

	assert.Equal(t, []model.Section{
		{ID: "intro", Text: "Intro", Depth: 1},
		{ID: "details", Text: "Details", Depth: 2},
	}, res.Sections)
	assert.Contains(t, res.HTML, `<h2 id="intro">Intro</h2>`)
	assert.Contains(t, res.HTML, `<h3 id="details">Details</h3>`)
}

func TestRenderer_UnsafeMixesMarkdownAndHTMLHeadings(t *testing.T) {
	res, err := New(WithUnsafe()).Render("## Intro\n\n<h2>Intro</h2>\n\n## Custom {#my-anchor}\n")
	require.NoError(t, err)

	assert.Equal(t, []model.Section{
		{ID: "intro", Text: "Intro", Depth: 1},
		{ID: "intro-1", Text: "Intro", Depth: 1},
		{ID: "my-anchor", Text: "Custom", Depth: 1},
	}, res.Sections)
	assert.Contains(t, res.HTML, `<h2 id="intro-1">Intro</h2>`)
}

func TestRenderer_UnsafeSanitizes(t *testing.T) {
	res, err := New(WithUnsafe()).Render(`<p onclick="steal()">hi</p><script>alert(1)</script><a href="javascript:alert(1)">x</a>`)
	require.NoError(t, err)

	assert.Contains(t, res.HTML, "<p>hi</p>")
	assert.NotContains(t, res.HTML, "<script")
	assert.NotContains(t, res.HTML, "alert(1)")
	assert.NotContains(t, res.HTML, "onclick")
	assert.NotContains(t, res.HTML, "javascript:")
}

func TestRenderer_Empty(t *testing.T) {
	res, err := New().Render("")
	require.NoError(t, err)
	assert.Empty(t, res.HTML)
	assert.NotNil(t, res.Sections)
}
