package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/blog-cli/config"
	"github.com/robertmeta/blog-cli/content"
	"github.com/robertmeta/blog-cli/feed"
	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/render"
	"github.com/robertmeta/blog-cli/source"
	"github.com/robertmeta/blog-cli/store"
	"github.com/robertmeta/blog-cli/toc"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
	ExitConfigError  = 4
)

func main() {
	app := &cli.App{
		Name:    "blog-cli",
		Usage:   "Serve and inspect blog posts from Markdown files, Notion or a feed",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"BLOG_CLI_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Value:   config.DefaultDBPath(),
				Usage:   "Index database file path",
				EnvVars: []string{"BLOG_CLI_DB"},
			},
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Content source: local, notion, feed or index",
				EnvVars: []string{"BLOG_CLI_SOURCE"},
			},
			&cli.StringFlag{
				Name:  "content-dir",
				Usage: "Directory of Markdown posts for the local source",
			},
			&cli.StringFlag{
				Name:  "feed-url",
				Usage: "RSS/Atom URL for the feed source",
			},
			&cli.StringFlag{
				Name:    "notion-token",
				Usage:   "Notion integration token",
				EnvVars: []string{"NOTION_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "notion-database",
				Usage:   "Notion database id",
				EnvVars: []string{"NOTION_DATABASE_ID"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log warnings and requests to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the JSON API, revalidation webhook and sitemap",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Address to listen on",
					},
					&cli.StringFlag{
						Name:    "secret",
						Usage:   "Revalidation webhook secret",
						EnvVars: []string{"REVALIDATION_SECRET"},
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Revalidate when files under the content directory change (local source)",
					},
				},
				Action: serve,
			},
			{
				Name:  "list",
				Usage: "List published posts, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Usage:   "Maximum number of posts to return (0 for all)",
					},
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Usage:   "Offset for pagination",
					},
					&cli.StringFlag{
						Name:  "since",
						Usage: "Show posts since duration (e.g., 7d, 2w, 3m, 1y)",
					},
					&cli.StringFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "Filter by tag",
					},
				},
				Action: listPosts,
			},
			{
				Name:      "show",
				Usage:     "Show a post with its rendered HTML, outline and neighbours",
				ArgsUsage: "<slug>",
				Action:    showPost,
			},
			{
				Name:      "adjacent",
				Usage:     "Show the previous and next posts",
				ArgsUsage: "<slug>",
				Action:    adjacentPosts,
			},
			{
				Name:   "tags",
				Usage:  "Count published posts per tag",
				Action: tagCounts,
			},
			{
				Name:      "toc",
				Usage:     "Print the heading outline of a Markdown/HTML file or a post",
				ArgsUsage: "<file|slug>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "headings",
						Usage: "Heading levels in the outline: h2-h4 or h1-h3",
					},
				},
				Action: outline,
			},
			{
				Name:   "sync",
				Usage:  "Rebuild the index from its backing source",
				Action: syncIndex,
			},
			{
				Name:  "sitemap",
				Usage: "Write sitemap.xml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: writeSitemap,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

// getLogger logs to stderr for the server and with --verbose, and discards
// otherwise so JSON output stays clean.
func getLogger(c *cli.Context) *log.Logger {
	if !c.Bool("verbose") && (c.Command == nil || c.Command.Name != "serve") {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "blog-cli: ", log.LstdFlags)
}

// getConfig loads the config file and applies flag and environment
// overrides on top of it.
func getConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("source") {
		cfg.Source = c.String("source")
	}
	if c.IsSet("content-dir") {
		cfg.ContentDir = c.String("content-dir")
	}
	if c.IsSet("feed-url") {
		cfg.FeedURL = c.String("feed-url")
	}
	if c.IsSet("notion-token") {
		cfg.Notion.Token = c.String("notion-token")
	}
	if c.IsSet("notion-database") {
		cfg.Notion.DatabaseID = c.String("notion-database")
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("secret") {
		cfg.RevalidationSecret = c.String("secret")
	}
	if c.IsSet("watch") {
		cfg.Watch = c.Bool("watch")
	}
	if c.IsSet("headings") {
		cfg.Headings = c.String("headings")
	}
	return cfg, cfg.Validate()
}

func getStore(dbPath string) (*store.Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// openSource builds the source named kind. The returned close function
// releases the index database when kind is the index.
func openSource(cfg config.Config, kind string, logger *log.Logger) (source.Source, func(), error) {
	noop := func() {}
	switch kind {
	case config.SourceLocal:
		return source.NewLocal(cfg.ContentDir, logger), noop, nil
	case config.SourceNotion:
		return source.NewNotion(source.NotionConfig{
			Token:      cfg.Notion.Token,
			DatabaseID: cfg.Notion.DatabaseID,
			BaseURL:    cfg.Notion.BaseURL,
			Properties: cfg.Notion.Properties,
		}, logger), noop, nil
	case config.SourceFeed:
		return feed.NewFetcher(cfg.FeedURL, logger), noop, nil
	case config.SourceIndex:
		s, err := getStore(cfg.DBPath)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { s.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown source %q", kind)
}

// env is what every content command works against.
type env struct {
	cfg      config.Config
	logger   *log.Logger
	src      source.Source
	content  *content.Service
	renderer *render.Renderer
	close    func()
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := getConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitConfigError)
	}
	logger := getLogger(c)

	src, closeSrc, err := openSource(cfg, cfg.Source, logger)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitDataError)
	}

	conv, _ := toc.ParseConvention(cfg.Headings)
	renderOpts := []render.Option{render.WithConvention(conv)}
	if cfg.Source == config.SourceFeed || (cfg.Source == config.SourceIndex && cfg.IndexOf == config.SourceFeed) {
		renderOpts = append(renderOpts, render.WithUnsafe())
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		src:      src,
		content:  content.New(src, logger, content.WithTTL(cfg.CacheTTL)),
		renderer: render.New(renderOpts...),
		close:    closeSrc,
	}, nil
}

// fail maps a content error onto an exit code.
func fail(msg string, err error) error {
	if model.IsConfigurationError(err) {
		return cli.Exit(fmt.Sprintf("%s: %v", msg, err), ExitConfigError)
	}
	return cli.Exit(fmt.Sprintf("%s: %v", msg, err), ExitDataError)
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
