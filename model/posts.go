package model

import "sort"

// SortByDateDesc orders posts newest first. The sort is stable, so posts
// sharing a date keep the order the source returned them in.
func SortByDateDesc(posts []*Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Time().After(posts[j].Time())
	})
}

// FilterPublished returns the published posts in their original order.
func FilterPublished(posts []*Post) []*Post {
	out := make([]*Post, 0, len(posts))
	for _, p := range posts {
		if p != nil && p.IsPublished() {
			out = append(out, p)
		}
	}
	return out
}

// DedupeSlugs keeps the first post for each slug and returns the rest as
// dropped. Posts without a slug are always dropped.
func DedupeSlugs(posts []*Post) (kept, dropped []*Post) {
	seen := make(map[string]bool, len(posts))
	kept = make([]*Post, 0, len(posts))
	for _, p := range posts {
		if p.Validate() != nil || seen[p.Slug] {
			dropped = append(dropped, p)
			continue
		}
		seen[p.Slug] = true
		kept = append(kept, p)
	}
	return kept, dropped
}

// FilterByTag returns the posts carrying tag. An empty tag matches all.
func FilterByTag(posts []*Post, tag string) []*Post {
	if tag == "" {
		return posts
	}
	var out []*Post
	for _, p := range posts {
		if p.HasTag(tag) {
			out = append(out, p)
		}
	}
	return out
}

// TagCounts counts how many posts carry each tag.
func TagCounts(posts []*Post) map[string]int {
	counts := make(map[string]int)
	for _, p := range posts {
		for _, t := range p.Tags {
			counts[t]++
		}
	}
	return counts
}

// AdjacentOf finds slug in a newest-first listing. The earlier article sits
// after it in the slice, the later one before it.
func AdjacentOf(posts []*Post, slug string) Adjacent {
	for i, p := range posts {
		if p.Slug != slug {
			continue
		}
		var adj Adjacent
		if i+1 < len(posts) {
			adj.Prev = posts[i+1]
		}
		if i > 0 {
			adj.Next = posts[i-1]
		}
		return adj
	}
	return Adjacent{}
}
