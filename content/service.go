// Package content serves published posts from a source.Source through a
// revalidating cache: listings, lookups by slug, chronological neighbours
// and tag views.
package content

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robertmeta/blog-cli/cache"
	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/source"
)

const (
	listKey = "posts:published"
	// TagPosts is carried by every cached listing and post.
	TagPosts = "posts"
)

// PostPath is the cache path of a single post page.
func PostPath(slug string) string {
	return "/posts/" + slug
}

// Service answers content queries against a single source.
type Service struct {
	src      source.Source
	logger   *log.Logger
	registry *cache.Registry
	lists    *cache.Cache[[]*model.Post]
	posts    *cache.Cache[*model.Post]
}

type options struct {
	ttl      time.Duration
	clock    cache.Clock
	registry *cache.Registry
}

// Option configures a Service.
type Option func(*options)

// WithTTL sets the revalidation window. The default is cache.DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(clock cache.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRegistry registers the service caches in an existing registry
// instead of a private one.
func WithRegistry(r *cache.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New creates a Service reading from src.
func New(src source.Source, logger *log.Logger, opts ...Option) *Service {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if o.registry == nil {
		o.registry = cache.NewRegistry()
	}

	s := &Service{
		src:      src,
		logger:   logger,
		registry: o.registry,
		lists:    cache.New[[]*model.Post](o.ttl, o.clock),
		posts:    cache.New[*model.Post](o.ttl, o.clock),
	}
	s.registry.Register(s.lists)
	s.registry.Register(s.posts)
	return s
}

// SourceName returns the name of the backing source, which is also the
// cache tag its entries carry.
func (s *Service) SourceName() string {
	return s.src.Name()
}

// Registry returns the invalidation registry the service caches belong to.
func (s *Service) Registry() *cache.Registry {
	return s.registry
}

// Invalidate marks cached entries matching tags or paths stale and returns
// how many were affected.
func (s *Service) Invalidate(tags, paths []string) int {
	return s.registry.Invalidate(tags, paths)
}

// ListPublishedPosts returns every published post, newest first. Any
// source error aborts the listing; nothing is cached on failure.
func (s *Service) ListPublishedPosts(ctx context.Context) ([]*model.Post, error) {
	posts, err := s.published(ctx)
	if err != nil {
		return nil, err
	}
	return summaries(posts), nil
}

func (s *Service) published(ctx context.Context) ([]*model.Post, error) {
	if posts, ok := s.lists.Get(listKey); ok {
		return posts, nil
	}

	gen := s.lists.Generation()
	all, err := s.src.List(ctx)
	if err != nil {
		return nil, err
	}
	posts := model.FilterPublished(all)
	for _, p := range posts {
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}
	model.SortByDateDesc(posts)

	posts, dropped := model.DedupeSlugs(posts)
	for _, p := range dropped {
		if p.Slug == "" {
			s.logger.Printf("warning: %s", model.MalformedContentWarning{PostID: p.ID, Field: "slug"})
			continue
		}
		s.logger.Printf("warning: duplicate slug %q, dropping post %s", p.Slug, p.ID)
	}

	if !s.lists.SetAt(gen, listKey, posts, "", TagPosts, s.src.Name()) {
		s.logger.Printf("listing invalidated while fetching, not caching it")
	}
	return posts, nil
}

// GetPostBySlug returns the published post with slug, body included. A
// missing post is reported as found == false with a nil error.
func (s *Service) GetPostBySlug(ctx context.Context, slug string) (*model.Post, bool, error) {
	path := PostPath(slug)
	if post, ok := s.posts.Get(path); ok {
		return copyPost(post), true, nil
	}

	gen := s.posts.Generation()
	meta, found, err := s.find(ctx, slug)
	if err != nil || !found {
		return nil, false, err
	}

	body, err := s.src.Body(ctx, meta)
	if err != nil {
		return nil, false, err
	}
	post := meta.Summary()
	post.Content = body

	s.posts.SetAt(gen, path, post, path, TagPosts, s.src.Name())
	return copyPost(post), true, nil
}

func (s *Service) find(ctx context.Context, slug string) (*model.Post, bool, error) {
	if finder, ok := s.src.(source.SlugFinder); ok {
		post, found, err := finder.FindBySlug(ctx, slug)
		if err != nil || !found {
			return nil, false, err
		}
		if !post.IsPublished() {
			return nil, false, nil
		}
		return post, true, nil
	}

	posts, err := s.published(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, p := range posts {
		if p.Slug == slug {
			return p, true, nil
		}
	}
	return nil, false, nil
}

// SlugForID returns the slug of the published post with the given source
// id.
func (s *Service) SlugForID(ctx context.Context, id string) (string, bool, error) {
	posts, err := s.published(ctx)
	if err != nil {
		return "", false, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p.Slug, true, nil
		}
	}
	return "", false, nil
}

// GetAdjacentPosts returns the chronological neighbours of slug. Prev is
// the earlier post and Next the later one; both are nil for an unknown
// slug. Posts sharing a date keep source order, so neighbours among them
// depend on the backing store.
func (s *Service) GetAdjacentPosts(ctx context.Context, slug string) (model.Adjacent, error) {
	posts, err := s.published(ctx)
	if err != nil {
		return model.Adjacent{}, err
	}
	adj := model.AdjacentOf(posts, slug)
	if adj.Prev != nil {
		adj.Prev = adj.Prev.Summary()
	}
	if adj.Next != nil {
		adj.Next = adj.Next.Summary()
	}
	return adj, nil
}

// ListByTag returns the published posts carrying tag, newest first. An
// empty tag returns every published post.
func (s *Service) ListByTag(ctx context.Context, tag string) ([]*model.Post, error) {
	posts, err := s.published(ctx)
	if err != nil {
		return nil, err
	}
	return summaries(model.FilterByTag(posts, tag)), nil
}

// TagCounts counts published posts per tag.
func (s *Service) TagCounts(ctx context.Context) (map[string]int, error) {
	posts, err := s.published(ctx)
	if err != nil {
		return nil, err
	}
	return model.TagCounts(posts), nil
}

// Page is everything a post page needs.
type Page struct {
	Post     *model.Post
	Found    bool
	Adjacent model.Adjacent
}

// PostPage loads a post and its neighbours concurrently.
func (s *Service) PostPage(ctx context.Context, slug string) (Page, error) {
	var (
		wg      sync.WaitGroup
		page    Page
		postErr error
		adjErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		page.Post, page.Found, postErr = s.GetPostBySlug(ctx, slug)
	}()
	go func() {
		defer wg.Done()
		page.Adjacent, adjErr = s.GetAdjacentPosts(ctx, slug)
	}()
	wg.Wait()

	if postErr != nil {
		return Page{}, postErr
	}
	if adjErr != nil {
		return Page{}, adjErr
	}
	return page, nil
}

func summaries(posts []*model.Post) []*model.Post {
	out := make([]*model.Post, len(posts))
	for i, p := range posts {
		out[i] = p.Summary()
	}
	return out
}

func copyPost(p *model.Post) *model.Post {
	cp := *p
	cp.Tags = append([]string{}, p.Tags...)
	return &cp
}
