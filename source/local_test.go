package source

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/blog-cli/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func bySlug(posts []*model.Post) map[string]*model.Post {
	m := make(map[string]*model.Post, len(posts))
	for _, p := range posts {
		m[p.Slug] = p
	}
	return m
}

func TestLocal_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello-world.md", `---
title: Hello World
date: 2024-03-01
description: First post
tags: [go, web]
---
Body text here.
`)
	writeFile(t, dir, "second/index.mdx", `---
title: Second
date: "2024-03-02T10:00:00Z"
tags: go, notes
slug: second-post
---
# Second
`)
	writeFile(t, dir, "draft.md", `---
title: Draft
date: 2024-03-03
draft: true
---
`)
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "_partial.md", "ignored")
	writeFile(t, dir, "empty-dir/readme.txt", "ignored")

	l := NewLocal(dir, nil)
	assert.Equal(t, "local", l.Name())

	posts, err := l.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 3)

	got := bySlug(posts)

	hello := got["hello-world"]
	require.NotNil(t, hello)
	assert.Equal(t, "hello-world.md", hello.ID)
	assert.Equal(t, "Hello World", hello.Title)
	assert.Equal(t, "2024-03-01", hello.Date)
	assert.Equal(t, "First post", hello.Description)
	assert.Equal(t, []string{"go", "web"}, hello.Tags)
	assert.Equal(t, model.StatusPublished, hello.Status)
	assert.Equal(t, "local", hello.Source)

	second := got["second-post"]
	require.NotNil(t, second)
	assert.Equal(t, "second/index.mdx", second.ID)
	assert.Equal(t, []string{"go", "notes"}, second.Tags)
	assert.Equal(t, "# Second", second.Description, "preview falls back to the body")

	assert.Equal(t, model.StatusDraft, got["draft"].Status)
}

func TestLocal_MissingFieldsAreDefaulted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "no-front-matter.md", "Just some words without any header at all, long enough to be trimmed down to the preview size.\n")

	var buf bytes.Buffer
	l := NewLocal(dir, log.New(&buf, "", 0))

	posts, err := l.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)

	p := posts[0]
	assert.Equal(t, "no-front-matter", p.Slug)
	assert.Equal(t, "No Front Matter", p.Title)
	assert.Equal(t, "", p.Date)
	assert.Equal(t, []string{}, p.Tags)
	assert.Len(t, []rune(p.Description), previewLength)
	assert.Equal(t, model.StatusPublished, p.Status)

	assert.Contains(t, buf.String(), `"title"`)
	assert.Contains(t, buf.String(), `"date"`)
}

func TestLocal_Body(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "post/index.md", "---\ntitle: Post\n---\n## Intro\n\nHello.\n")

	l := NewLocal(dir, nil)
	posts, err := l.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)

	body, err := l.Body(context.Background(), posts[0])
	require.NoError(t, err)
	assert.Equal(t, "## Intro\n\nHello.\n", body)

	_, err = l.Body(context.Background(), &model.Post{ID: "missing.md"})
	var fetchErr *model.TransientFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestLocal_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
	}{
		{name: "empty dir setting", dir: ""},
		{name: "missing dir", dir: filepath.Join(t.TempDir(), "nope")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocal(tt.dir, nil).List(context.Background())
			require.Error(t, err)
			assert.True(t, model.IsConfigurationError(err))
		})
	}
}

func TestLocal_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "---\ntitle: A\n---\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal(dir, nil).List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListField(t *testing.T) {
	tests := []struct {
		name string
		fm   map[string]interface{}
		want []string
		ok   bool
	}{
		{name: "yaml list", fm: map[string]interface{}{"tags": []interface{}{"a", " b ", ""}}, want: []string{"a", "b"}, ok: true},
		{name: "comma string", fm: map[string]interface{}{"tags": "a, b,,c"}, want: []string{"a", "b", "c"}, ok: true},
		{name: "blank string", fm: map[string]interface{}{"tags": " "}, ok: false},
		{name: "missing", fm: map[string]interface{}{}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := listField(tt.fm, "tags")
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
