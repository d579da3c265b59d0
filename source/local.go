package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/robertmeta/blog-cli/model"
)

const previewLength = 80

var contentExtensions = map[string]bool{".md": true, ".mdx": true}

// Directory posts keep their body in one of these files.
var indexFiles = []string{"index.md", "index.mdx", "page.mdx", "page.md"}

// Local reads posts from a directory of Markdown/MDX files with YAML
// front-matter. A post is either <slug>.md(x) or <slug>/index.md(x).
type Local struct {
	dir    string
	logger *log.Logger
}

// NewLocal creates a Local source rooted at dir.
func NewLocal(dir string, logger *log.Logger) *Local {
	return &Local{dir: dir, logger: orDiscard(logger)}
}

// Name implements Source.
func (l *Local) Name() string { return "local" }

// Dir returns the content directory.
func (l *Local) Dir() string { return l.dir }

// List implements Source.
func (l *Local) List(ctx context.Context) ([]*model.Post, error) {
	if l.dir == "" {
		return nil, &model.ConfigurationError{Field: "content_dir"}
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &model.ConfigurationError{Field: "content_dir", Reason: l.dir + " does not exist"}
		}
		return nil, &model.TransientFetchError{Op: "read content dir", Err: err}
	}

	var posts []*model.Post
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, slug, ok := l.resolve(e)
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, rel))
		if err != nil {
			return nil, &model.TransientFetchError{Op: "read " + rel, Err: err}
		}
		posts = append(posts, l.parse(rel, slug, data))
	}
	return posts, nil
}

// Body implements Source. The post ID is the file path relative to the
// content directory.
func (l *Local) Body(_ context.Context, post *model.Post) (string, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, filepath.FromSlash(post.ID)))
	if err != nil {
		return "", &model.TransientFetchError{Op: "read " + post.ID, Err: err}
	}
	_, body := splitFrontmatter(data)
	return string(body), nil
}

func (l *Local) resolve(e fs.DirEntry) (rel, slug string, ok bool) {
	name := e.Name()
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return "", "", false
	}
	if !e.IsDir() {
		ext := strings.ToLower(filepath.Ext(name))
		if !contentExtensions[ext] {
			return "", "", false
		}
		return name, strings.TrimSuffix(name, filepath.Ext(name)), true
	}
	for _, index := range indexFiles {
		candidate := filepath.Join(name, index)
		if info, err := os.Stat(filepath.Join(l.dir, candidate)); err == nil && !info.IsDir() {
			return candidate, name, true
		}
	}
	return "", "", false
}

func splitFrontmatter(data []byte) (map[string]interface{}, []byte) {
	fm := make(map[string]interface{})
	body, err := frontmatter.Parse(bytes.NewReader(data), &fm)
	if err != nil {
		return map[string]interface{}{}, data
	}
	return fm, body
}

func (l *Local) parse(rel, fileSlug string, data []byte) *model.Post {
	id := filepath.ToSlash(rel)
	fm, body := splitFrontmatter(data)

	post := &model.Post{
		ID:     id,
		Slug:   fileSlug,
		Source: l.Name(),
		Tags:   []string{},
	}

	if slug, ok := stringField(fm, "slug"); ok && slug != "" {
		post.Slug = slug
	}

	if title, ok := stringField(fm, "title"); ok && title != "" {
		post.Title = title
	} else {
		warn(l.logger, id, "title")
		post.Title = titleFromSlug(post.Slug)
	}

	if date, ok := stringField(fm, "date"); ok {
		post.Date = date
	}
	if _, ok := model.ParseDate(post.Date); !ok {
		warn(l.logger, id, "date")
	}

	switch {
	case nonEmpty(fm, "description"):
		post.Description, _ = stringField(fm, "description")
	case nonEmpty(fm, "preview"):
		post.Description, _ = stringField(fm, "preview")
	default:
		post.Description = preview(body)
	}

	if tags, ok := listField(fm, "tags"); ok {
		post.Tags = tags
	} else if tag, ok := stringField(fm, "tag"); ok && tag != "" {
		post.Tags = []string{tag}
	}

	post.Status = model.StatusPublished
	if status, ok := stringField(fm, "status"); ok {
		post.Status = model.ParseStatus(status)
	} else if draft, ok := fm["draft"].(bool); ok && draft {
		post.Status = model.StatusDraft
	}

	return post
}

func stringField(fm map[string]interface{}, key string) (string, bool) {
	switch v := fm[key].(type) {
	case string:
		return strings.TrimSpace(v), true
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 {
			return v.Format("2006-01-02"), true
		}
		return v.Format(time.RFC3339), true
	case fmt.Stringer:
		return v.String(), true
	case int, int64, float64, bool:
		return fmt.Sprint(v), true
	}
	return "", false
}

func nonEmpty(fm map[string]interface{}, key string) bool {
	s, ok := stringField(fm, key)
	return ok && s != ""
}

func listField(fm map[string]interface{}, key string) ([]string, bool) {
	switch v := fm[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []string:
		return append([]string{}, v...), true
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out, out != nil
	}
	return nil, false
}

func titleFromSlug(slug string) string {
	words := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	return cases.Title(language.English).String(words)
}

func preview(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return text
}
