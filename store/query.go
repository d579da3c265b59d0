package store

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/robertmeta/blog-cli/model"
)

// durationPattern matches the --since window: a count and a unit.
var durationPattern = regexp.MustCompile(`^(\d+)([dwmy])$`)

// Months and years are approximated as 30 and 365 days.
var durationUnits = map[string]time.Duration{
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
	"m": 30 * 24 * time.Hour,
	"y": 365 * 24 * time.Hour,
}

// ParseDuration parses a window such as "7d", "2w", "3m" or "1y".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected <number><unit>, e.g. 7d, 2w, 3m, 1y)", s)
	}
	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}
	return time.Duration(num) * durationUnits[matches[2]], nil
}

// SinceToUnixTime returns the Unix time that lies the given window before now.
func SinceToUnixTime(since string) (int64, error) {
	duration, err := ParseDuration(since)
	if err != nil {
		return 0, err
	}

	sinceTime := time.Now().Add(-duration)
	return sinceTime.Unix(), nil
}

// BuildQueryOptions constructs QueryOptions from CLI flags. Listings built
// this way only ever return published posts.
func BuildQueryOptions(limit, offset int, since, tag string) (QueryOptions, error) {
	if limit < 0 || offset < 0 {
		return QueryOptions{}, fmt.Errorf("limit and offset must not be negative")
	}
	opts := QueryOptions{
		Limit:  limit,
		Offset: offset,
		Tag:    tag,
		Status: model.StatusPublished,
	}

	// Parse since duration if provided
	if since != "" {
		sinceUnix, err := SinceToUnixTime(since)
		if err != nil {
			return opts, fmt.Errorf("failed to parse --since flag: %w", err)
		}
		opts.SinceTime = &sinceUnix
	}

	return opts, nil
}
