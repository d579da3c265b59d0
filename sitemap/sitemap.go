// Package sitemap builds and reads sitemaps.org XML for the blog.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robertmeta/blog-cli/model"
)

// Namespace is the sitemaps.org 0.9 schema.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URLSet represents the root sitemap structure.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL is a single sitemap entry.
type URL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

// Page is a static page listed ahead of the posts.
type Page struct {
	Path       string
	ChangeFreq string
	Priority   float64
}

// DefaultPages are the site's static pages.
var DefaultPages = []Page{
	{Path: "/", ChangeFreq: "yearly", Priority: 1},
	{Path: "/about", ChangeFreq: "monthly", Priority: 0.8},
	{Path: "/posts", ChangeFreq: "weekly", Priority: 0.9},
	{Path: "/projects", ChangeFreq: "monthly", Priority: 0.8},
}

// Build lists the static pages (last modified now) followed by one entry
// per post (last modified at the post date). Posts with an unusable date
// get no lastmod.
func Build(baseURL string, pages []Page, posts []*model.Post, now time.Time) URLSet {
	base := strings.TrimRight(baseURL, "/")
	set := URLSet{Xmlns: Namespace, URLs: make([]URL, 0, len(pages)+len(posts))}

	for _, p := range pages {
		set.URLs = append(set.URLs, URL{
			Loc:        base + p.Path,
			LastMod:    now.UTC().Format(time.RFC3339),
			ChangeFreq: p.ChangeFreq,
			Priority:   p.Priority,
		})
	}
	for _, post := range posts {
		u := URL{
			Loc:        base + "/posts/" + post.Slug,
			ChangeFreq: "weekly",
			Priority:   0.7,
		}
		if t, ok := model.ParseDate(post.Date); ok {
			u.LastMod = t.UTC().Format(time.RFC3339)
		}
		set.URLs = append(set.URLs, u)
	}
	return set
}

// Generate writes set as indented XML.
func Generate(w io.Writer, set URLSet) error {
	if set.Xmlns == "" {
		set.Xmlns = Namespace
	}

	// Write XML declaration
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(set); err != nil {
		return fmt.Errorf("failed to encode sitemap: %w", err)
	}

	// Add final newline
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}

// Parse reads a sitemap and returns its entries.
func Parse(r io.Reader) ([]URL, error) {
	var set URLSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}
	return set.URLs, nil
}
