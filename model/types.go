// Package model defines the core data structures for blog-cli.
package model

import (
	"errors"
	"strings"
	"time"
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusUnknown   Status = ""
)

// ParseStatus maps a source label onto a Status. Unrecognized labels
// become StatusUnknown, which never participates in listings.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusDraft:
		return StatusDraft
	case StatusPublished:
		return StatusPublished
	case StatusArchived:
		return StatusArchived
	}
	return StatusUnknown
}

// Post is the canonical article record shared by every content source.
type Post struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Status      Status   `json:"status"`
	Content     string   `json:"content,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Validate checks if the post has required fields.
func (p *Post) Validate() error {
	if strings.TrimSpace(p.Slug) == "" {
		return errors.New("post slug is required")
	}
	return nil
}

// IsPublished returns true if the post may be exposed in listings.
func (p *Post) IsPublished() bool {
	return p.Status == StatusPublished
}

// HasTag checks if the post has the specified tag.
func (p *Post) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Epoch is the instant used for dates that are missing or cannot be parsed.
var Epoch = time.Unix(0, 0).UTC()

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 date string. The second return value is
// false when the string matched none of the accepted layouts, in which
// case Epoch is returned.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Epoch, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return Epoch, false
}

// Time returns the parsed post date, or Epoch if Date is unusable.
func (p *Post) Time() time.Time {
	t, _ := ParseDate(p.Date)
	return t
}

// Summary returns a copy of the post without its body.
func (p *Post) Summary() *Post {
	cp := *p
	cp.Content = ""
	cp.Tags = append([]string{}, p.Tags...)
	return &cp
}

// Adjacent holds the chronological neighbours of a post.
// Prev is the earlier article, Next the later one.
type Adjacent struct {
	Prev *Post `json:"prev"`
	Next *Post `json:"next"`
}

// Section is one entry in a document's heading outline.
// Depth is ordinal (1..3) and only drives indentation.
type Section struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Depth int    `json:"depth"`
}
