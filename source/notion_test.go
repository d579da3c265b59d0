package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/toc"
)

const pageA = `{
  "object": "page",
  "id": "11111111-2222-3333-4444-555555555555",
  "properties": {
    "title": {"type": "title", "title": [{"plain_text": "Post "}, {"plain_text": "A"}]},
    "date": {"type": "date", "date": {"start": "2024-02-01"}},
    "description": {"type": "rich_text", "rich_text": [{"plain_text": "About A"}]},
    "slug": {"type": "rich_text", "rich_text": [{"plain_text": "a"}]},
    "tags": {"type": "multi_select", "multi_select": [{"name": "go"}, {"name": "web"}]},
    "status": {"type": "select", "select": {"name": "published"}}
  }
}`

const pageB = `{
  "object": "page",
  "id": "bbbbbbbb-2222-3333-4444-555555555555",
  "properties": {
    "title": {"type": "title", "title": [{"plain_text": "Post B"}]},
    "slug": {"type": "rich_text", "rich_text": [{"plain_text": "b"}]},
    "status": {"type": "status", "status": {"name": "Published"}}
  }
}`

type notionFake struct {
	queries  []map[string]interface{}
	handlers map[string]http.HandlerFunc
}

func newNotionServer(t *testing.T, fake *notionFake) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Notion-Version"))

		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/query") {
			var body map[string]interface{}
			data, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(data, &body))
			fake.queries = append(fake.queries, body)
		}
		h, ok := fake.handlers[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// field walks nested JSON objects by key.
func field(t *testing.T, v interface{}, keys ...string) interface{} {
	t.Helper()
	for _, k := range keys {
		m, ok := v.(map[string]interface{})
		require.True(t, ok, "expected an object at %q", k)
		v = m[k]
	}
	return v
}

func jsonResponse(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func newTestNotion(srv *httptest.Server) *Notion {
	return NewNotion(NotionConfig{
		Token:      "secret-token",
		DatabaseID: "db1",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}, nil)
}

func TestNotion_List(t *testing.T) {
	calls := 0
	fake := &notionFake{handlers: map[string]http.HandlerFunc{
		"POST /v1/databases/db1/query": func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				jsonResponse(`{"results": [` + pageA + `], "has_more": true, "next_cursor": "c2"}`)(w, r)
				return
			}
			jsonResponse(`{"results": [` + pageB + `], "has_more": false, "next_cursor": null}`)(w, r)
		},
	}}
	srv := newNotionServer(t, fake)

	posts, err := newTestNotion(srv).List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	a := posts[0]
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", a.ID)
	assert.Equal(t, "Post A", a.Title)
	assert.Equal(t, "2024-02-01", a.Date)
	assert.Equal(t, "About A", a.Description)
	assert.Equal(t, "a", a.Slug)
	assert.Equal(t, []string{"go", "web"}, a.Tags)
	assert.Equal(t, model.StatusPublished, a.Status)
	assert.Equal(t, "notion", a.Source)

	b := posts[1]
	assert.Equal(t, "", b.Date, "missing date defaults to empty")
	assert.Equal(t, "", b.Description)
	assert.Equal(t, []string{}, b.Tags)
	assert.Equal(t, model.StatusPublished, b.Status, "status properties are read too")

	require.Len(t, fake.queries, 2)
	first := fake.queries[0]
	filter, ok := first["filter"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "status", filter["property"])
	assert.Equal(t, "published", field(t, filter, "select", "equals"))
	sorts, ok := first["sorts"].([]interface{})
	require.True(t, ok)
	require.Len(t, sorts, 1)
	assert.Equal(t, "date", field(t, sorts[0], "property"))
	assert.Equal(t, "descending", field(t, sorts[0], "direction"))
	assert.NotContains(t, first, "start_cursor")
	assert.Equal(t, "c2", fake.queries[1]["start_cursor"])
}

func TestNotion_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name  string
		cfg   NotionConfig
		field string
	}{
		{name: "no database", cfg: NotionConfig{Token: "t"}, field: "NOTION_DATABASE_ID"},
		{name: "no token", cfg: NotionConfig{DatabaseID: "db"}, field: "NOTION_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNotion(tt.cfg, nil).List(context.Background())
			var ce *model.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestNotion_HTTPErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		code       string
		wantConfig bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, code: "unauthorized", wantConfig: true},
		{name: "unknown database", status: http.StatusNotFound, code: "object_not_found", wantConfig: true},
		{name: "rate limited", status: http.StatusTooManyRequests, code: "rate_limited"},
		{name: "server error", status: http.StatusBadGateway, code: "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &notionFake{handlers: map[string]http.HandlerFunc{
				"POST /v1/databases/db1/query": func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					_, _ = fmt.Fprintf(w, `{"object":"error","status":%d,"code":%q,"message":"nope"}`, tt.status, tt.code)
				},
			}}
			srv := newNotionServer(t, fake)

			_, err := newTestNotion(srv).List(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantConfig, model.IsConfigurationError(err))
			if !tt.wantConfig {
				var fe *model.TransientFetchError
				assert.ErrorAs(t, err, &fe)
			}
		})
	}
}

func TestNotion_FindBySlug(t *testing.T) {
	fake := &notionFake{handlers: map[string]http.HandlerFunc{
		"POST /v1/databases/db1/query": jsonResponse(`{"results": [` + pageA + `], "has_more": false}`),
	}}
	srv := newNotionServer(t, fake)
	n := newTestNotion(srv)

	post, ok, err := n.FindBySlug(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Post A", post.Title)

	_, ok, err = n.FindBySlug(context.Background(), "zzz")
	require.NoError(t, err)
	assert.False(t, ok)

	filter := fake.queries[0]["filter"].(map[string]interface{})
	and, ok := filter["and"].([]interface{})
	require.True(t, ok)
	require.Len(t, and, 2)
	assert.Equal(t, "status", field(t, and[0], "property"))
	assert.Equal(t, "slug", field(t, and[1], "property"))
	assert.Equal(t, "a", field(t, and[1], "rich_text", "equals"))
}

func TestNotion_Body(t *testing.T) {
	const root = "11111111-2222-3333-4444-555555555555"
	const child = "cccccccc-2222-3333-4444-555555555555"
	fake := &notionFake{handlers: map[string]http.HandlerFunc{
		"GET /v1/blocks/" + root + "/children": jsonResponse(`{"results": [
			{"id": "aaaaaaaa-0000-0000-0000-000000000001", "type": "heading_1", "heading_1": {"rich_text": [{"plain_text": "Intro"}]}},
			{"id": "p1", "type": "paragraph", "paragraph": {"rich_text": [
				{"plain_text": "Hello "},
				{"plain_text": "bold", "annotations": {"bold": true}},
				{"plain_text": " and "},
				{"plain_text": "link", "href": "https://example.com"}
			]}},
			{"id": "l1", "type": "bulleted_list_item", "bulleted_list_item": {"rich_text": [{"plain_text": "one"}]}},
			{"id": "` + child + `", "type": "bulleted_list_item", "has_children": true, "bulleted_list_item": {"rich_text": [{"plain_text": "two"}]}},
			{"id": "c1", "type": "code", "code": {"language": "go", "rich_text": [{"plain_text": "fmt.Println()"}]}},
			{"id": "x1", "type": "unsupported"},
			{"id": "aaaaaaaa-0000-0000-0000-000000000002", "type": "heading_2", "heading_2": {"rich_text": [{"plain_text": "Details"}]}}
		], "has_more": false}`),
		"GET /v1/blocks/" + child + "/children": jsonResponse(`{"results": [
			{"id": "l2", "type": "bulleted_list_item", "bulleted_list_item": {"rich_text": [{"plain_text": "nested"}]}}
		], "has_more": false}`),
	}}
	srv := newNotionServer(t, fake)

	body, err := newTestNotion(srv).Body(context.Background(), &model.Post{ID: root})
	require.NoError(t, err)

	want := strings.Join([]string{
		"## Intro {#aaaaaaaa000000000000000000000001}",
		"",
		"Hello **bold** and [link](https://example.com)",
		"",
		"- one",
		"- two",
		"  - nested",
		"",
		"```go",
		"fmt.Println()",
		"```",
		"",
		"### Details {#aaaaaaaa000000000000000000000002}",
		"",
	}, "\n")
	assert.Equal(t, want, body)
}

func TestNotion_BodyEscapesLiteralText(t *testing.T) {
	const root = "11111111-2222-3333-4444-555555555555"
	fake := &notionFake{handlers: map[string]http.HandlerFunc{
		"GET /v1/blocks/" + root + "/children": jsonResponse(`{"results": [
			{"id": "p1", "type": "paragraph", "paragraph": {"rich_text": [{"plain_text": "## not a heading"}]}},
			{"id": "p2", "type": "paragraph", "paragraph": {"rich_text": [{"plain_text": "2 * 3 * 4 = 24"}]}},
			{"id": "p3", "type": "paragraph", "paragraph": {"rich_text": [{"plain_text": "- not a list"}]}},
			{"id": "p4", "type": "paragraph", "paragraph": {"rich_text": [{"plain_text": "1. not a list either"}]}},
			{"id": "p5", "type": "paragraph", "paragraph": {"rich_text": [
				{"plain_text": "see [docs](x) and "},
				{"plain_text": "a` + "`" + `b", "annotations": {"code": true}}
			]}},
			{"id": "c1", "type": "code", "code": {"language": "markdown", "rich_text": [{"plain_text": "` + "```" + `\n# inside\n` + "```" + `"}]}}
		], "has_more": false}`),
	}}
	srv := newNotionServer(t, fake)

	body, err := newTestNotion(srv).Body(context.Background(), &model.Post{ID: root})
	require.NoError(t, err)

	want := strings.Join([]string{
		`\#\# not a heading`,
		"",
		`2 \* 3 \* 4 = 24`,
		"",
		`\- not a list`,
		"",
		`1\. not a list either`,
		"",
		`see \[docs\](x) and ` + "``a`b``",
		"",
		"````markdown",
		"```",
		"# inside",
		"```",
		"````",
		"",
	}, "\n")
	assert.Equal(t, want, body)
	assert.Empty(t, toc.FromMarkdown([]byte(body), toc.H2ToH4), "escaped text adds no headings")
}

func TestNotion_BodyRequiresPageID(t *testing.T) {
	n := NewNotion(NotionConfig{Token: "t", DatabaseID: "db"}, nil)

	tests := []struct {
		name string
		id   string
	}{
		{name: "missing", id: ""},
		{name: "not a uuid", id: "my-first-post"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Body(context.Background(), &model.Post{ID: tt.id, Slug: "a"})
			assert.ErrorIs(t, err, errNoPageID)
		})
	}
}

func TestNotion_BodyUsesCanonicalPageID(t *testing.T) {
	fake := &notionFake{handlers: map[string]http.HandlerFunc{
		"GET /v1/blocks/aaaaaaaa-2222-3333-4444-555555555555/children": jsonResponse(`{"results": [
			{"id": "p1", "type": "paragraph", "paragraph": {"rich_text": [{"plain_text": "found"}]}}
		], "has_more": false}`),
	}}
	srv := newNotionServer(t, fake)

	body, err := newTestNotion(srv).Body(context.Background(), &model.Post{ID: "AAAAAAAA222233334444555555555555"})
	require.NoError(t, err)
	assert.Equal(t, "found\n", body)
}

func TestAnchorID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{id: "aaaaaaaa-0000-0000-0000-000000000001", want: "aaaaaaaa000000000000000000000001"},
		{id: "AAAAAAAA000000000000000000000001", want: "aaaaaaaa000000000000000000000001"},
		{id: "{aaaaaaaa-0000-0000-0000-000000000001}", want: "aaaaaaaa000000000000000000000001"},
		{id: "urn:uuid:AAAAAAAA-0000-0000-0000-000000000001", want: "aaaaaaaa000000000000000000000001"},
		{id: "not-a-uuid", want: "notauuid"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, AnchorID(tt.id))
		})
	}
}
