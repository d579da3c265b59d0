package toc

import (
	"sync"

	"github.com/robertmeta/blog-cli/model"
)

// Observer is the visibility-based scroll spy: each heading reports when it
// enters or leaves a band near the top of the viewport, and the heading that
// most recently entered is active. When several enter at once the last
// report wins.
type Observer struct {
	mu     sync.Mutex
	env    Env
	opts   options
	known  map[string]bool
	active string
	closed bool
}

var _ Spy = (*Observer)(nil)

// Observe starts watching sections. Like Attach, it is inert without a
// Viewport and honours an incoming fragment.
func Observe(sections []model.Section, env Env, opts ...Option) *Observer {
	o := &Observer{env: env, opts: buildOptions(opts), known: make(map[string]bool)}
	if env.Viewport == nil || len(sections) == 0 {
		o.closed = true
		return o
	}
	for _, s := range sections {
		o.known[s.ID] = true
	}
	if env.History != nil {
		if frag := env.History.Fragment(); o.known[frag] {
			o.active = frag
			if top, ok := env.Viewport.HeadingTop(frag); ok {
				env.Viewport.ScrollTo(top-o.opts.margin, false)
			}
		}
	}
	return o
}

// Report records a visibility change for the heading with id. Leaving the
// band never clears the active heading.
func (o *Observer) Report(id string, intersecting bool) {
	o.mu.Lock()
	if o.closed || !intersecting || !o.known[id] || o.active == id {
		o.mu.Unlock()
		return
	}
	o.active = id
	o.mu.Unlock()

	if o.env.History != nil {
		o.env.History.ReplaceFragment(id)
	}
	if o.opts.onChange != nil {
		o.opts.onChange(id)
	}
}

// Active returns the active heading id.
func (o *Observer) Active() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Click scrolls to id and activates it immediately.
func (o *Observer) Click(id string) bool {
	o.mu.Lock()
	if o.closed || !o.known[id] {
		o.mu.Unlock()
		return false
	}
	changed := o.active != id
	o.active = id
	o.mu.Unlock()

	if top, ok := o.env.Viewport.HeadingTop(id); ok {
		o.env.Viewport.ScrollTo(top-o.opts.margin, true)
	}
	if o.env.History != nil {
		o.env.History.ReplaceFragment(id)
	}
	if changed && o.opts.onChange != nil {
		o.opts.onChange(id)
	}
	return true
}

// Close stops the observer. Later reports are ignored.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}
