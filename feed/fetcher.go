// Package feed provides an RSS/Atom backing store for blog-cli: a published
// feed is read as a list of posts.
package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/toc"
)

// Fetcher handles fetching and parsing RSS/Atom feeds.
type Fetcher struct {
	parser *gofeed.Parser
	url    string
	logger *log.Logger

	mu     sync.Mutex
	bodies map[string]string
}

// NewFetcher creates a new Fetcher for the feed at url.
func NewFetcher(url string, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Fetcher{
		parser: gofeed.NewParser(),
		url:    url,
		logger: logger,
		bodies: make(map[string]string),
	}
}

// Name implements source.Source.
func (f *Fetcher) Name() string { return "feed" }

// List implements source.Source. Every feed item is a published post.
func (f *Fetcher) List(ctx context.Context) ([]*model.Post, error) {
	if f.url == "" {
		return nil, &model.ConfigurationError{Field: "feed_url"}
	}
	return f.Fetch(ctx, f.url)
}

// Body implements source.Source. Item content is captured while listing;
// a post that was never listed triggers a refetch.
func (f *Fetcher) Body(ctx context.Context, post *model.Post) (string, error) {
	if body, ok := f.body(post.ID); ok {
		return body, nil
	}
	if _, err := f.List(ctx); err != nil {
		return "", err
	}
	if body, ok := f.body(post.ID); ok {
		return body, nil
	}
	return "", fmt.Errorf("feed item %s: %w", post.ID, model.ErrNotFound)
}

func (f *Fetcher) body(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[id]
	return body, ok
}

// Fetch retrieves and parses a feed from a URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]*model.Post, error) {
	parsedFeed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, &model.TransientFetchError{Op: "fetch feed " + url, Err: err}
	}
	return f.convert(parsedFeed), nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string) ([]*model.Post, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsedFeed, err := f.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return f.convert(parsedFeed), nil
}

// convert converts a gofeed.Feed to posts and remembers item bodies.
func (f *Fetcher) convert(gf *gofeed.Feed) []*model.Post {
	posts := make([]*model.Post, 0, len(gf.Items))
	bodies := make(map[string]string, len(gf.Items))
	for _, item := range gf.Items {
		post, body := f.convertItem(item)
		posts = append(posts, post)
		bodies[post.ID] = body
	}

	f.mu.Lock()
	f.bodies = bodies
	f.mu.Unlock()
	return posts
}

// convertItem converts a gofeed.Item to a post and its body.
func (f *Fetcher) convertItem(item *gofeed.Item) (*model.Post, string) {
	post := &model.Post{
		ID:          item.GUID,
		Title:       item.Title,
		Description: strings.TrimSpace(item.Description),
		Slug:        slugFor(item),
		Status:      model.StatusPublished,
		Source:      f.Name(),
		Tags:        []string{},
	}

	// Use link as GUID if GUID is missing
	if post.ID == "" {
		post.ID = item.Link
	}
	if post.ID == "" {
		post.ID = post.Slug
	}

	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			post.Tags = append(post.Tags, c)
		}
	}

	// Parse published date
	if item.PublishedParsed != nil {
		post.Date = item.PublishedParsed.UTC().Format(time.RFC3339)
	} else if item.UpdatedParsed != nil {
		post.Date = item.UpdatedParsed.UTC().Format(time.RFC3339)
	} else {
		f.logger.Printf("warning: %s", model.MalformedContentWarning{PostID: post.ID, Field: "published"})
	}

	// Get content (prefer full content over description)
	body := item.Content
	if body == "" {
		body = item.Description
	}
	return post, body
}

// slugFor takes the last path segment of the item link, without extension.
// Items without a usable link are slugged from their title.
func slugFor(item *gofeed.Item) string {
	if u, err := url.Parse(item.Link); err == nil && u.Path != "" {
		seg := path.Base(strings.TrimRight(u.Path, "/"))
		seg = strings.TrimSuffix(seg, path.Ext(seg))
		if seg != "" && seg != "/" && seg != "." {
			return seg
		}
	}
	return toc.Slugify(item.Title)
}
