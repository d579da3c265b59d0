// Package store provides a SQLite index of posts for blog-cli. The index
// mirrors a backing store so listings can be served without reaching it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/source"
	_ "modernc.org/sqlite"
)

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// QueryOptions specifies how to query posts.
type QueryOptions struct {
	Limit     int
	Offset    int
	Tag       string
	Status    model.Status
	SinceTime *int64 // Unix timestamp
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	// Initialize schema
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name implements source.Source.
func (s *Store) Name() string { return "index" }

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT UNIQUE NOT NULL,
		slug TEXT NOT NULL,
		title TEXT,
		description TEXT,
		date TEXT,
		published INTEGER NOT NULL,
		status TEXT NOT NULL,
		source TEXT,
		body TEXT
	);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS post_tags (
		post_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (post_id, tag_id),
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_slug ON posts(slug);
	CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SavePost inserts a post or updates the row with the same source id, and
// replaces its tags.
func (s *Store) SavePost(ctx context.Context, p *model.Post, body string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := savePost(ctx, tx, p, body); err != nil {
		return err
	}
	return tx.Commit()
}

func savePost(ctx context.Context, tx execer, p *model.Post, body string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	id := p.ID
	if id == "" {
		id = p.Slug
	}

	var rowID int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO posts (source_id, slug, title, description, date, published, status, source, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			slug = excluded.slug,
			title = excluded.title,
			description = excluded.description,
			date = excluded.date,
			published = excluded.published,
			status = excluded.status,
			source = excluded.source,
			body = excluded.body
		RETURNING id`,
		id, p.Slug, p.Title, p.Description, p.Date, p.Time().Unix(), string(p.Status), p.Source, body,
	).Scan(&rowID)
	if err != nil {
		return fmt.Errorf("failed to save post %s: %w", p.Slug, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM post_tags WHERE post_id = ?", rowID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for i, tag := range p.Tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING", tag); err != nil {
			return fmt.Errorf("failed to save tag %s: %w", tag, err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO post_tags (post_id, tag_id, position) SELECT ?, id, ? FROM tags WHERE name = ?",
			rowID, i, tag,
		)
		if err != nil {
			return fmt.Errorf("failed to tag post: %w", err)
		}
	}
	return nil
}

// DeletePost deletes a post by its source id.
func (s *Store) DeletePost(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM post_tags WHERE post_id IN (SELECT id FROM posts WHERE source_id = ?)", sourceID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM posts WHERE source_id = ?", sourceID)
	return err
}

const postColumns = "p.id, p.source_id, p.slug, p.title, p.description, p.date, p.status, p.source"

// GetPostBySlug retrieves a post by slug regardless of status. It returns
// model.ErrNotFound when no row matches.
func (s *Store) GetPostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postColumns+" FROM posts p WHERE p.slug = ? ORDER BY p.published DESC, p.id ASC LIMIT 1", slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	posts, err := s.scanPosts(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, model.ErrNotFound
	}
	return posts[0], nil
}

// GetPosts retrieves posts with optional filtering, pagination.
func (s *Store) GetPosts(ctx context.Context, opts QueryOptions) ([]*model.Post, error) {
	query := "SELECT " + postColumns + " FROM posts p WHERE 1=1"
	args := []interface{}{}

	// Apply filters
	if opts.Status != model.StatusUnknown {
		query += " AND p.status = ?"
		args = append(args, string(opts.Status))
	}

	if opts.Tag != "" {
		query += " AND p.id IN (SELECT pt.post_id FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE t.name = ?)"
		args = append(args, opts.Tag)
	}

	if opts.SinceTime != nil {
		query += " AND p.published >= ?"
		args = append(args, *opts.SinceTime)
	}

	// Newest first; ties keep insertion order
	query += " ORDER BY p.published DESC, p.id ASC"

	// Apply pagination
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}

	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	return s.scanPosts(ctx, rows)
}

func (s *Store) scanPosts(ctx context.Context, rows *sql.Rows) ([]*model.Post, error) {
	posts, rowIDs, err := readPosts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	// With a single connection the tag query must run after rows is closed.
	tags, err := s.tagsFor(ctx, rowIDs)
	if err != nil {
		return nil, err
	}
	for i, p := range posts {
		if t, ok := tags[rowIDs[i]]; ok {
			p.Tags = t
		}
	}
	return posts, nil
}

func readPosts(rows *sql.Rows) ([]*model.Post, []int64, error) {
	defer rows.Close()

	var posts []*model.Post
	var rowIDs []int64
	for rows.Next() {
		p := &model.Post{Tags: []string{}}
		var rowID int64
		var status string
		if err := rows.Scan(&rowID, &p.ID, &p.Slug, &p.Title, &p.Description, &p.Date, &status, &p.Source); err != nil {
			return nil, nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.Status = model.Status(status)
		posts = append(posts, p)
		rowIDs = append(rowIDs, rowID)
	}
	return posts, rowIDs, rows.Err()
}

func (s *Store) tagsFor(ctx context.Context, rowIDs []int64) (map[int64][]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(rowIDs)), ",")
	args := make([]interface{}, len(rowIDs))
	for i, id := range rowIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT pt.post_id, t.name FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id IN ("+
			placeholders+") ORDER BY pt.post_id, pt.position", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags[id] = append(tags[id], name)
	}
	return tags, rows.Err()
}

// List implements source.Source with the published posts in the index.
func (s *Store) List(ctx context.Context) ([]*model.Post, error) {
	return s.GetPosts(ctx, QueryOptions{Status: model.StatusPublished})
}

// FindBySlug implements source.SlugFinder. Only published posts are found.
func (s *Store) FindBySlug(ctx context.Context, slug string) (*model.Post, bool, error) {
	var rowID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM posts WHERE slug = ? AND status = ? ORDER BY published DESC, id ASC LIMIT 1",
		slug, string(model.StatusPublished)).Scan(&rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find post: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+postColumns+" FROM posts p WHERE p.id = ?", rowID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get post: %w", err)
	}
	posts, err := s.scanPosts(ctx, rows)
	if err != nil || len(posts) == 0 {
		return nil, false, err
	}
	return posts[0], true, nil
}

// Body implements source.Source.
func (s *Store) Body(ctx context.Context, post *model.Post) (string, error) {
	var body sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT body FROM posts WHERE source_id = ?", post.ID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("post %s: %w", post.ID, model.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get body: %w", err)
	}
	return body.String, nil
}

// Sync replaces the index with the published posts of src, bodies included,
// and returns how many it stored. The index is left untouched if the listing
// or any body fetch fails.
func (s *Store) Sync(ctx context.Context, src source.Source) (int, error) {
	listed, err := src.List(ctx)
	if err != nil {
		return 0, err
	}
	// The index answers slug lookups, so it holds one published post per
	// slug: the newest, as every other listing picks it.
	listed = model.FilterPublished(listed)
	model.SortByDateDesc(listed)
	posts, _ := model.DedupeSlugs(listed)

	bodies := make([]string, len(posts))
	for i, p := range posts {
		if bodies[i], err = src.Body(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to fetch body for %s: %w", p.Slug, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM post_tags", "DELETE FROM posts"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to clear index: %w", err)
		}
	}
	for i, p := range posts {
		if err := savePost(ctx, tx, p, bodies[i]); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sync: %w", err)
	}
	return len(posts), nil
}
