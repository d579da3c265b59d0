package source

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/robertmeta/blog-cli/model"
)

const (
	// DefaultNotionBaseURL is the public Notion API endpoint.
	DefaultNotionBaseURL = "https://api.notion.com"
	notionPageSize       = 100
	defaultMaxDepth      = 3
)

// PropertyNames maps canonical post fields onto Notion database property
// names.
type PropertyNames struct {
	Title       string `yaml:"title"`
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
	Slug        string `yaml:"slug"`
	Tags        string `yaml:"tags"`
	Status      string `yaml:"status"`
}

// DefaultPropertyNames returns the lowercase property names used by the
// blog's database.
func DefaultPropertyNames() PropertyNames {
	return PropertyNames{
		Title:       "title",
		Date:        "date",
		Description: "description",
		Slug:        "slug",
		Tags:        "tags",
		Status:      "status",
	}
}

// NotionConfig configures the Notion source.
type NotionConfig struct {
	Token      string
	DatabaseID string
	// BaseURL replaces the scheme, host and path prefix of every API
	// request. Leave empty for the public API.
	BaseURL    string
	Properties PropertyNames
	HTTPClient *http.Client
	// MaxDepth bounds how many levels of nested blocks Body follows.
	MaxDepth int
}

// Notion lists posts from a Notion database and renders page blocks to
// markdown.
type Notion struct {
	cfg    NotionConfig
	client *notionapi.Client
	logger *log.Logger
}

// NewNotion creates a Notion source. Empty config fields get defaults.
func NewNotion(cfg NotionConfig, logger *log.Logger) *Notion {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNotionBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	defaults := DefaultPropertyNames()
	if cfg.Properties.Title == "" {
		cfg.Properties.Title = defaults.Title
	}
	if cfg.Properties.Date == "" {
		cfg.Properties.Date = defaults.Date
	}
	if cfg.Properties.Description == "" {
		cfg.Properties.Description = defaults.Description
	}
	if cfg.Properties.Slug == "" {
		cfg.Properties.Slug = defaults.Slug
	}
	if cfg.Properties.Tags == "" {
		cfg.Properties.Tags = defaults.Tags
	}
	if cfg.Properties.Status == "" {
		cfg.Properties.Status = defaults.Status
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BaseURL != DefaultNotionBaseURL {
		if base, err := url.Parse(cfg.BaseURL); err == nil {
			httpClient = &http.Client{
				Transport:     &rebaseTransport{base: base, next: httpClient.Transport},
				CheckRedirect: httpClient.CheckRedirect,
				Jar:           httpClient.Jar,
				Timeout:       httpClient.Timeout,
			}
		}
	}

	return &Notion{
		cfg:    cfg,
		client: notionapi.NewClient(notionapi.Token(cfg.Token), notionapi.WithHTTPClient(httpClient)),
		logger: orDiscard(logger),
	}
}

// rebaseTransport sends requests for the public API to another endpoint,
// such as a proxy or a test server.
type rebaseTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *rebaseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.URL.Path = strings.TrimRight(t.base.Path, "/") + req.URL.Path
	out.URL.RawPath = ""
	out.Host = ""
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(out)
}

// Name implements Source.
func (n *Notion) Name() string { return "notion" }

func (n *Notion) checkConfig() error {
	if n.cfg.DatabaseID == "" {
		return &model.ConfigurationError{Field: "NOTION_DATABASE_ID"}
	}
	if n.cfg.Token == "" {
		return &model.ConfigurationError{Field: "NOTION_API_KEY"}
	}
	return nil
}

func (n *Notion) publishedFilter() *notionapi.PropertyFilter {
	return &notionapi.PropertyFilter{
		Property: n.cfg.Properties.Status,
		Select:   &notionapi.SelectFilterCondition{Equals: string(model.StatusPublished)},
	}
}

// List implements Source. Only published pages are requested, newest
// first.
func (n *Notion) List(ctx context.Context) ([]*model.Post, error) {
	return n.query(ctx, n.publishedFilter())
}

// FindBySlug implements SlugFinder with a server-side filter.
func (n *Notion) FindBySlug(ctx context.Context, slug string) (*model.Post, bool, error) {
	filter := notionapi.AndCompoundFilter{
		n.publishedFilter(),
		&notionapi.PropertyFilter{
			Property: n.cfg.Properties.Slug,
			RichText: &notionapi.TextFilterCondition{Equals: slug},
		},
	}
	posts, err := n.query(ctx, filter)
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

func (n *Notion) query(ctx context.Context, filter notionapi.Filter) ([]*model.Post, error) {
	if err := n.checkConfig(); err != nil {
		return nil, err
	}

	req := &notionapi.DatabaseQueryRequest{
		Filter: filter,
		Sorts: []notionapi.SortObject{
			{Property: n.cfg.Properties.Date, Direction: notionapi.SortOrderDESC},
		},
		PageSize: notionPageSize,
	}

	var posts []*model.Post
	for {
		resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(n.cfg.DatabaseID), req)
		if err != nil {
			return nil, n.apiError("query database", err, true)
		}
		for _, pg := range resp.Results {
			if pg.Properties == nil {
				continue
			}
			posts = append(posts, n.toPost(pg))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		req.StartCursor = notionapi.Cursor(resp.NextCursor)
	}
	return posts, nil
}

// apiError maps a client error onto the content errors. A rejected token
// is a configuration problem, and so is an unknown database when the
// database itself was requested. Everything else may pass on retry.
func (n *Notion) apiError(op string, err error, database bool) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized || string(apiErr.Code) == "unauthorized":
			return &model.ConfigurationError{Field: "NOTION_API_KEY", Reason: "rejected by Notion: " + apiErr.Message}
		case database && (apiErr.Status == http.StatusNotFound || string(apiErr.Code) == "object_not_found"):
			return &model.ConfigurationError{Field: "NOTION_DATABASE_ID", Reason: "not found: " + apiErr.Message}
		}
	}
	return &model.TransientFetchError{Op: op, Err: err}
}

func (n *Notion) toPost(pg notionapi.Page) *model.Post {
	props := n.cfg.Properties
	id := string(pg.ID)
	post := &model.Post{ID: id, Source: n.Name(), Tags: []string{}}

	var ok bool
	if post.Title, ok = titleText(pg.Properties, props.Title); !ok {
		warn(n.logger, id, props.Title)
	}
	if post.Date, ok = dateStart(pg.Properties, props.Date); !ok {
		warn(n.logger, id, props.Date)
	}
	if post.Description, ok = richTextPlain(pg.Properties, props.Description); !ok {
		warn(n.logger, id, props.Description)
	}
	if post.Slug, ok = richTextPlain(pg.Properties, props.Slug); !ok {
		warn(n.logger, id, props.Slug)
	}
	if tags, ok := multiSelect(pg.Properties, props.Tags); ok {
		post.Tags = tags
	} else {
		warn(n.logger, id, props.Tags)
	}
	status, ok := selectName(pg.Properties, props.Status)
	if !ok {
		warn(n.logger, id, props.Status)
	}
	post.Status = model.ParseStatus(status)
	return post
}

// titleText extracts a title property as plain text.
func titleText(props notionapi.Properties, name string) (string, bool) {
	p, ok := props[name].(*notionapi.TitleProperty)
	if !ok {
		return "", false
	}
	return plainText(p.Title), true
}

// richTextPlain extracts a rich_text property as plain text.
func richTextPlain(props notionapi.Properties, name string) (string, bool) {
	p, ok := props[name].(*notionapi.RichTextProperty)
	if !ok {
		return "", false
	}
	return plainText(p.RichText), true
}

// dateStart extracts the start of a date property. Dates without a time
// keep the YYYY-MM-DD form.
func dateStart(props notionapi.Properties, name string) (string, bool) {
	p, ok := props[name].(*notionapi.DateProperty)
	if !ok || p.Date == nil || p.Date.Start == nil {
		return "", false
	}
	t := time.Time(*p.Date.Start)
	if t.Location() == time.UTC && t.Equal(t.Truncate(24*time.Hour)) {
		return t.Format("2006-01-02"), true
	}
	return t.Format(time.RFC3339), true
}

// multiSelect extracts the option names of a multi_select property.
func multiSelect(props notionapi.Properties, name string) ([]string, bool) {
	p, ok := props[name].(*notionapi.MultiSelectProperty)
	if !ok {
		return nil, false
	}
	tags := make([]string, 0, len(p.MultiSelect))
	for _, o := range p.MultiSelect {
		tags = append(tags, o.Name)
	}
	return tags, true
}

// selectName extracts the option name of a select or status property.
func selectName(props notionapi.Properties, name string) (string, bool) {
	switch p := props[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name, p.Select.Name != ""
	case *notionapi.StatusProperty:
		return p.Status.Name, p.Status.Name != ""
	}
	return "", false
}

func plainText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

var errNoPageID = errors.New("post has no Notion page id")
