// Package source adapts backing stores (local Markdown files, a Notion
// database) into model.Post records.
package source

import (
	"context"
	"io"
	"log"

	"github.com/robertmeta/blog-cli/model"
)

// Source lists posts from a backing store and fetches their bodies.
// List returns metadata only; bodies are fetched one post at a time.
type Source interface {
	Name() string
	List(ctx context.Context) ([]*model.Post, error)
	Body(ctx context.Context, post *model.Post) (string, error)
}

// SlugFinder is implemented by sources that can look a post up by slug
// without listing everything.
type SlugFinder interface {
	FindBySlug(ctx context.Context, slug string) (*model.Post, bool, error)
}

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return logger
}

func warn(logger *log.Logger, postID, field string) {
	logger.Printf("warning: %s", model.MalformedContentWarning{PostID: postID, Field: field})
}
