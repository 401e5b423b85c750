package poller

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"vendor-desk/utils"
)

const DefaultInterval = 8 * time.Second

// Location is the point a nearby search is centred on.
type Location struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// Filter selects what a poller fetches. An empty Term means idle.
type Filter struct {
	Term     string   `json:"term"`
	Location Location `json:"location"`
}

// Active reports whether the filter should be polled.
func (f Filter) Active() bool { return f.Term != "" }

// View is what the presentation layer renders.
type View[T any] struct {
	Filter     Filter    `json:"filter"`
	Rows       []T       `json:"rows"`
	Loading    bool      `json:"loading"`
	Refreshing bool      `json:"refreshing"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FetchFunc runs one fetch pipeline for f.
type FetchFunc[T any] func(ctx context.Context, f Filter) ([]T, error)

// Observer is told about every completed poll.
type Observer interface {
	PollCompleted(poller string, changed bool)
}

// Options configures a Poller.
type Options struct {
	Name     string
	Interval time.Duration
	Policy   KeyPolicy
	Clock    clockwork.Clock
	Logger   *utils.Logger
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "poller"
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = utils.NopLogger()
	}
	return o
}

type result[T any] struct {
	gen  uint64
	rows []T
	err  error
}

type filterCmd struct {
	filter Filter
	ack    chan struct{}
}

// Poller re-runs a fetch on a fixed interval while its filter is active and
// keeps the latest rows. All state changes happen on its own goroutine.
type Poller[T any] struct {
	fetch FetchFunc[T]
	keys  Keys[T]
	opts  Options

	view atomic.Pointer[View[T]]

	filters chan filterCmd
	results chan result[T]
	closing chan struct{}
	done    chan struct{}
}

// Start launches a poller in the idle state. It stops on Close or when ctx ends.
func Start[T any](ctx context.Context, fetch FetchFunc[T], keys Keys[T], opts Options) *Poller[T] {
	p := &Poller[T]{
		fetch:   fetch,
		keys:    keys,
		opts:    opts.withDefaults(),
		filters: make(chan filterCmd),
		results: make(chan result[T]),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.view.Store(&View[T]{Rows: []T{}})
	go p.run(ctx)
	return p
}

// SetFilter replaces the filter. It returns once the poller has applied it.
func (p *Poller[T]) SetFilter(f Filter) {
	cmd := filterCmd{filter: f, ack: make(chan struct{})}
	select {
	case p.filters <- cmd:
		<-cmd.ack
	case <-p.done:
	}
}

// Snapshot returns the current view. Rows are a copy.
func (p *Poller[T]) Snapshot() View[T] {
	v := *p.view.Load()
	v.Rows = slices.Clone(v.Rows)
	return v
}

// Close stops the poller and waits for its loop to exit.
func (p *Poller[T]) Close() {
	select {
	case p.closing <- struct{}{}:
	case <-p.done:
	}
	<-p.done
}

func (p *Poller[T]) Done() <-chan struct{} { return p.done }

func (p *Poller[T]) run(ctx context.Context) {
	defer close(p.done)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		filter    Filter
		gen       uint64
		inflight  int
		loaded    bool
		displayed []string
		ticker    clockwork.Ticker
		ticks     <-chan time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		ticks = nil
	}
	defer stopTicker()

	publish := func(rows []T, updated bool) {
		prev := p.view.Load()
		v := &View[T]{
			Filter:     filter,
			Rows:       prev.Rows,
			Loading:    inflight > 0 && !loaded,
			Refreshing: inflight > 0 && loaded,
			UpdatedAt:  prev.UpdatedAt,
		}
		if updated {
			v.Rows = rows
			v.UpdatedAt = p.opts.Clock.Now()
		}
		p.view.Store(v)
	}

	launch := func() {
		inflight++
		go func(g uint64, f Filter) {
			rows, err := p.fetch(fetchCtx, f)
			select {
			case p.results <- result[T]{gen: g, rows: rows, err: err}:
			case <-p.done:
			case <-fetchCtx.Done():
			}
		}(gen, filter)
	}

	for {
		select {
		case cmd := <-p.filters:
			stopTicker()
			gen++
			filter = cmd.filter
			inflight = 0
			loaded = false
			displayed = nil

			if !filter.Active() {
				publish([]T{}, true)
				p.opts.Logger.Debug("[%s] Polling stopped", p.opts.Name)
				close(cmd.ack)
				continue
			}

			ticker = p.opts.Clock.NewTicker(p.opts.Interval)
			ticks = ticker.Chan()
			launch()
			publish([]T{}, true)
			p.opts.Logger.Debug("[%s] Polling %q every %s", p.opts.Name, filter.Term, p.opts.Interval)
			close(cmd.ack)

		case <-ticks:
			launch()
			publish(nil, false)

		case r := <-p.results:
			if r.gen != gen {
				continue
			}
			inflight--
			rows := r.rows
			if r.err != nil {
				p.opts.Logger.Warn("[%s] Fetch for %q failed: %v", p.opts.Name, filter.Term, r.err)
				rows = nil
			}
			if rows == nil {
				rows = []T{}
			}

			keys := p.keys.list(p.opts.Policy, rows)
			changed := !loaded || !slices.Equal(keys, displayed)
			loaded = true
			if changed {
				displayed = keys
			}
			publish(rows, changed)
			if p.opts.Observer != nil {
				p.opts.Observer.PollCompleted(p.opts.Name, changed)
			}

		case <-p.closing:
			return

		case <-ctx.Done():
			return
		}
	}
}
