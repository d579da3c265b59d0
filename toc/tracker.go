package toc

import (
	"sort"
	"sync"

	"github.com/robertmeta/blog-cli/model"
)

// DefaultScrollMargin is the height of the sticky header, in pixels, that
// headings must clear before they count as active.
const DefaultScrollMargin = 90

// Viewport is the live document a tracker observes. Headless renderers
// have none, and trackers attached without one do nothing.
type Viewport interface {
	ScrollY() float64
	// HeadingTop reports the document offset of the heading with id.
	HeadingTop(id string) (float64, bool)
	ScrollTo(y float64, smooth bool)
}

// History exposes the location fragment, without the leading '#'.
type History interface {
	Fragment() string
	// ReplaceFragment updates the fragment without adding a history entry.
	ReplaceFragment(id string)
}

// FrameScheduler runs fn before the next repaint. The returned func
// cancels the request if it has not run yet.
type FrameScheduler interface {
	RequestFrame(fn func()) (cancel func())
}

// Env bundles the capabilities a tracker may use. Any of them may be nil.
type Env struct {
	Viewport Viewport
	History  History
	Frames   FrameScheduler
}

// Spy reports the active heading of a document.
type Spy interface {
	Active() string
	Click(id string) bool
	Close()
}

type options struct {
	margin   float64
	onChange func(id string)
}

// Option configures a Tracker or Observer.
type Option func(*options)

// WithMargin overrides DefaultScrollMargin.
func WithMargin(px float64) Option {
	return func(o *options) { o.margin = px }
}

// OnChange registers fn to be called whenever the active id changes.
func OnChange(fn func(id string)) Option {
	return func(o *options) { o.onChange = fn }
}

func buildOptions(opts []Option) options {
	o := options{margin: DefaultScrollMargin}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type interval struct {
	id    string
	start float64
}

// Tracker is the position-table scroll spy. Each measured heading owns the
// half-open band [top-margin, nextTop-margin); the last band runs to the end
// of the document. Scroll events are coalesced into at most one pending
// frame.
type Tracker struct {
	mu        sync.Mutex
	env       Env
	opts      options
	sections  []model.Section
	intervals []interval
	active    string
	pending   bool
	remeasure bool
	cancel    func()
	closed    bool
}

var _ Spy = (*Tracker)(nil)

// Attach starts tracking sections in env. When env has no Viewport the
// returned tracker is inert. An incoming fragment naming one of the
// sections becomes the initial active heading and is scrolled into place.
func Attach(sections []model.Section, env Env, opts ...Option) *Tracker {
	t := &Tracker{env: env, opts: buildOptions(opts)}
	if env.Viewport == nil {
		t.closed = true
		return t
	}
	t.sections = append([]model.Section(nil), sections...)
	t.measure()

	if env.History != nil {
		if frag := env.History.Fragment(); frag != "" && t.has(frag) {
			t.active = frag
			if top, ok := env.Viewport.HeadingTop(frag); ok {
				env.Viewport.ScrollTo(top-t.opts.margin, false)
			}
			return t
		}
	}
	t.active = t.locate(env.Viewport.ScrollY())
	return t
}

// Active returns the active heading id, or "" when none is active.
func (t *Tracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// OnScroll schedules a recomputation. Calls arriving while one is pending
// are dropped.
func (t *Tracker) OnScroll() {
	t.schedule(false)
}

// OnResize schedules a re-measure of heading offsets and a recomputation.
func (t *Tracker) OnResize() {
	t.schedule(true)
}

// Refresh replaces the tracked sections after the content changed.
func (t *Tracker) Refresh(sections []model.Section) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.cancelPending()
	t.sections = append([]model.Section(nil), sections...)
	t.measure()
	id := t.locate(t.env.Viewport.ScrollY())
	changed := t.setActive(id)
	t.mu.Unlock()

	if changed {
		t.publish(id)
	}
}

// Click scrolls to the heading with id, placing it just below the header,
// and marks it active without waiting for the scroll to settle.
func (t *Tracker) Click(id string) bool {
	t.mu.Lock()
	if t.closed || !t.has(id) {
		t.mu.Unlock()
		return false
	}
	top, ok := t.env.Viewport.HeadingTop(id)
	changed := t.setActive(id)
	t.mu.Unlock()

	if ok {
		t.env.Viewport.ScrollTo(top-t.opts.margin, true)
	}
	if t.env.History != nil {
		t.env.History.ReplaceFragment(id)
	}
	if changed && t.opts.onChange != nil {
		t.opts.onChange(id)
	}
	return true
}

// Close releases the pending frame. Later events are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cancelPending()
}

func (t *Tracker) schedule(remeasure bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.remeasure = t.remeasure || remeasure
	if t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = true
	frames := t.env.Frames
	t.mu.Unlock()

	if frames == nil {
		t.frame()
		return
	}
	cancel := frames.RequestFrame(t.frame)

	t.mu.Lock()
	if t.pending {
		t.cancel = cancel
	}
	t.mu.Unlock()
}

func (t *Tracker) frame() {
	t.mu.Lock()
	t.pending = false
	t.cancel = nil
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.remeasure {
		t.remeasure = false
		t.measure()
	}
	id := t.locate(t.env.Viewport.ScrollY())
	changed := t.setActive(id)
	t.mu.Unlock()

	if changed {
		t.publish(id)
	}
}

func (t *Tracker) publish(id string) {
	if t.env.History != nil {
		t.env.History.ReplaceFragment(id)
	}
	if t.opts.onChange != nil {
		t.opts.onChange(id)
	}
}

func (t *Tracker) cancelPending() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.pending = false
}

func (t *Tracker) setActive(id string) bool {
	if id == t.active {
		return false
	}
	t.active = id
	return true
}

func (t *Tracker) has(id string) bool {
	for _, s := range t.sections {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (t *Tracker) measure() {
	t.intervals = t.intervals[:0]
	for _, s := range t.sections {
		top, ok := t.env.Viewport.HeadingTop(s.ID)
		if !ok {
			continue
		}
		t.intervals = append(t.intervals, interval{id: s.ID, start: top - t.opts.margin})
	}
	sort.SliceStable(t.intervals, func(i, j int) bool {
		return t.intervals[i].start < t.intervals[j].start
	})
}

// locate returns the heading whose band contains y.
func (t *Tracker) locate(y float64) string {
	i := sort.Search(len(t.intervals), func(i int) bool {
		return t.intervals[i].start > y
	})
	if i == 0 {
		return ""
	}
	return t.intervals[i-1].id
}
