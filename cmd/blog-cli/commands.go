package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
	"github.com/urfave/cli/v2"

	"github.com/robertmeta/blog-cli/config"
	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/sitemap"
	"github.com/robertmeta/blog-cli/source"
	"github.com/robertmeta/blog-cli/store"
	"github.com/robertmeta/blog-cli/toc"
	"github.com/robertmeta/blog-cli/web"
)

func serve(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if e.cfg.Watch {
		local, ok := e.src.(*source.Local)
		if !ok {
			return cli.Exit("--watch requires the local source", ExitUsageError)
		}
		go func() {
			err := source.Watch(ctx, local.Dir(), source.DefaultDebounce, e.logger, func() {
				n := e.content.Invalidate([]string{local.Name()}, nil)
				e.logger.Printf("content changed, revalidated %d entries", n)
			})
			if err != nil {
				e.logger.Printf("watch stopped: %v", err)
			}
		}()
	}

	srv := web.New(e.content, web.Options{
		Secret:   e.cfg.RevalidationSecret,
		BaseURL:  e.cfg.BaseURL,
		Renderer: e.renderer,
		Logger:   e.logger,
	})
	if err := srv.ListenAndServe(ctx, e.cfg.Listen); err != nil {
		return cli.Exit(fmt.Sprintf("Server failed: %v", err), ExitGeneralError)
	}
	return nil
}

func listPosts(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	opts, err := store.BuildQueryOptions(
		c.Int("limit"),
		c.Int("offset"),
		c.String("since"),
		c.String("tag"),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	var posts []*model.Post
	if idx, ok := e.src.(*store.Store); ok {
		posts, err = idx.GetPosts(c.Context, opts)
	} else {
		posts, err = e.content.ListByTag(c.Context, opts.Tag)
		posts = window(posts, opts)
	}
	if err != nil {
		return fail("Failed to list posts", err)
	}

	return outputJSON(map[string]interface{}{
		"count":  len(posts),
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"posts":  posts,
	})
}

// window applies the since, offset and limit options to a newest-first
// listing.
func window(posts []*model.Post, opts store.QueryOptions) []*model.Post {
	if opts.SinceTime != nil {
		cutoff := time.Unix(*opts.SinceTime, 0)
		kept := make([]*model.Post, 0, len(posts))
		for _, p := range posts {
			if !p.Time().Before(cutoff) {
				kept = append(kept, p)
			}
		}
		posts = kept
	}
	if opts.Offset >= len(posts) {
		return []*model.Post{}
	}
	posts = posts[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(posts) {
		posts = posts[:opts.Limit]
	}
	return posts
}

func showPost(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: blog-cli show <slug>", ExitUsageError)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	page, err := e.content.PostPage(c.Context, c.Args().Get(0))
	if err != nil {
		return fail("Failed to get post", err)
	}
	if !page.Found {
		return cli.Exit("Post not found", ExitDataError)
	}

	res, err := e.renderer.Render(page.Post.Content)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to render post: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"post":     page.Post.Summary(),
		"html":     res.HTML,
		"sections": res.Sections,
		"adjacent": page.Adjacent,
	})
}

func adjacentPosts(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: blog-cli adjacent <slug>", ExitUsageError)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	adj, err := e.content.GetAdjacentPosts(c.Context, c.Args().Get(0))
	if err != nil {
		return fail("Failed to get adjacent posts", err)
	}
	return outputJSON(adj)
}

func tagCounts(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	counts, err := e.content.TagCounts(c.Context)
	if err != nil {
		return fail("Failed to count tags", err)
	}
	return outputJSON(counts)
}

func outline(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: blog-cli toc <file|slug>", ExitUsageError)
	}
	arg := c.Args().Get(0)

	cfg, err := getConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitConfigError)
	}
	conv, _ := toc.ParseConvention(cfg.Headings)

	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		sections, err := fileOutline(c.Context, arg, conv)
		if err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
		return outputJSON(sections)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	post, found, err := e.content.GetPostBySlug(c.Context, arg)
	if err != nil {
		return fail("Failed to get post", err)
	}
	if !found {
		return cli.Exit("Post not found", ExitDataError)
	}
	res, err := e.renderer.Render(post.Content)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to render post: %v", err), ExitDataError)
	}
	return outputJSON(res.Sections)
}

func fileOutline(ctx context.Context, path string, conv toc.Convention) ([]model.Section, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return toc.FromHTML(f, conv)
	}

	local := source.NewLocal(filepath.Dir(path), nil)
	body, err := local.Body(ctx, &model.Post{ID: filepath.Base(path)})
	if err != nil {
		return nil, err
	}
	return toc.FromMarkdown([]byte(body), conv), nil
}

func syncIndex(c *cli.Context) error {
	cfg, err := getConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitConfigError)
	}
	if cfg.IndexOf == config.SourceIndex {
		return cli.Exit("index_of must name the source the index mirrors", ExitConfigError)
	}
	logger := getLogger(c)

	src, closeSrc, err := openSource(cfg, cfg.IndexOf, logger)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer closeSrc()

	s, err := getStore(cfg.DBPath)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	n, err := s.Sync(c.Context, src)
	if err != nil {
		return fail("Failed to sync index", err)
	}
	return outputJSON(map[string]interface{}{
		"success": true,
		"source":  src.Name(),
		"synced":  n,
	})
}

func writeSitemap(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	posts, err := e.content.ListPublishedPosts(c.Context)
	if err != nil {
		return fail("Failed to list posts", err)
	}
	set := sitemap.Build(e.cfg.BaseURL, sitemap.DefaultPages, posts, time.Now())

	output := c.String("output")
	if output == "" {
		if err := sitemap.Generate(os.Stdout, set); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to generate sitemap: %v", err), ExitDataError)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := sitemap.Generate(&buf, set); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate sitemap: %v", err), ExitDataError)
	}
	if err := atomic.WriteFile(output, &buf); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to write file: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"file":    output,
		"urls":    len(set.URLs),
	})
}
