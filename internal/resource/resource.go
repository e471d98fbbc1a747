// Package resource implements read-side state machines over remote fetches.
//
// A Resource owns one {data, loading, error} snapshot. Every load takes a
// sequence number; a response whose number is no longer the latest is
// discarded, so rapid key changes cannot be overwritten by a slow reply.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Izileth/lp-ebook/internal/refresh"
	"github.com/Izileth/lp-ebook/internal/util"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

// ErrClosed is returned by loads on a closed resource.
var ErrClosed = errors.New("resource closed")

var staleResponses = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_resource_stale_responses_total",
		Help: "Responses discarded because a newer load was issued.",
	},
	[]string{"resource"},
)

func init() {
	prometheus.MustRegister(staleResponses)
}

// NoKey scopes resources that take no parameter.
type NoKey = struct{}

// Fetcher reads the value for key.
type Fetcher[K comparable, T any] func(ctx context.Context, key K) (T, error)

// State is a snapshot of a resource. After a load settles exactly one of
// Data, Err or NotFound is set. Stale keeps the last good value visible
// while Err is set.
type State[T any] struct {
	Data     *T
	Stale    *T
	Loading  bool
	Err      string
	NotFound bool
}

type Resource[K comparable, T any] struct {
	name    string
	fetch   Fetcher[K, T]
	present func(K) bool

	mu        sync.Mutex
	key       K
	seq       uint64
	state     State[T]
	listeners map[int]func(State[T])
	nextID    int
	watchers  []context.CancelFunc
	closed    bool
}

// New builds a resource. present reports whether a key carries the scope the
// fetch needs; a nil present accepts every key.
func New[K comparable, T any](name string, fetch Fetcher[K, T], present func(K) bool) *Resource[K, T] {
	return &Resource[K, T]{
		name:      name,
		fetch:     fetch,
		present:   present,
		listeners: make(map[int]func(State[T])),
	}
}

func (r *Resource[K, T]) Name() string { return r.name }

// Load switches the resource to key and fetches it. An absent scope settles
// immediately with no data and no remote call. The returned error is the
// fetch error, also recorded in State as a message.
func (r *Resource[K, T]) Load(ctx context.Context, key K) error {
	return r.start(ctx, key)()
}

// Refetch reloads the current key.
func (r *Resource[K, T]) Refetch(ctx context.Context) error {
	r.mu.Lock()
	key := r.key
	r.mu.Unlock()
	return r.Load(ctx, key)
}

func (r *Resource[K, T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Key returns the key of the latest load.
func (r *Resource[K, T]) Key() K {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key
}

// Subscribe registers fn for every state change and returns a cancel function.
func (r *Resource[K, T]) Subscribe(fn func(State[T])) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

// Watch refetches the current key after every bump of k until ctx is done,
// the returned stop function is called or the resource is closed.
func (r *Resource[K, T]) Watch(ctx context.Context, k *refresh.Key) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return cancel
	}
	r.watchers = append(r.watchers, cancel)
	r.mu.Unlock()

	bumps, unsubscribe := k.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-bumps:
				if !ok {
					return
				}
				if err := r.Refetch(ctx); err != nil && !errors.Is(err, ErrClosed) {
					util.LoggerFromContext(ctx).Debug("refetch after refresh failed", "resource", r.name, "err", err)
				}
			}
		}
	}()
	return cancel
}

// Close stops watchers and ignores any response still in flight.
func (r *Resource[K, T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.seq++
	watchers := r.watchers
	r.watchers = nil
	r.listeners = make(map[int]func(State[T]))
	r.mu.Unlock()
	for _, cancel := range watchers {
		cancel()
	}
}

// start records the load under the lock and returns the function that
// performs the fetch. Splitting the two lets callers fix the load order
// synchronously and fetch in the background.
func (r *Resource[K, T]) start(ctx context.Context, key K) func() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() error { return ErrClosed }
	}
	r.key = key
	r.seq++
	seq := r.seq
	if r.present != nil && !r.present(key) {
		r.state = State[T]{}
		state, listeners := r.snapshotLocked()
		r.mu.Unlock()
		notify(listeners, state)
		return func() error { return nil }
	}
	r.state.Loading = true
	r.state.Err = ""
	r.state.NotFound = false
	state, listeners := r.snapshotLocked()
	r.mu.Unlock()
	notify(listeners, state)

	return func() error {
		v, err := r.call(ctx, key)
		r.settle(ctx, seq, v, err)
		return err
	}
}

func (r *Resource[K, T]) call(ctx context.Context, key K) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: fetch panicked: %v", r.name, p)
		}
	}()
	if r.fetch == nil {
		return v, remote.ErrUnavailable
	}
	return r.fetch(ctx, key)
}

func (r *Resource[K, T]) settle(ctx context.Context, seq uint64, v T, err error) {
	r.mu.Lock()
	if seq != r.seq {
		r.mu.Unlock()
		staleResponses.WithLabelValues(r.name).Inc()
		util.LoggerFromContext(ctx).Debug("discarding stale response", "resource", r.name, "seq", seq)
		return
	}
	switch {
	case err == nil:
		r.state = State[T]{Data: &v}
	case remote.IsNotFound(err):
		r.state = State[T]{NotFound: true}
	default:
		stale := r.state.Data
		if stale == nil {
			stale = r.state.Stale
		}
		r.state = State[T]{Stale: stale, Err: remote.Message(err)}
	}
	state, listeners := r.snapshotLocked()
	r.mu.Unlock()
	notify(listeners, state)
}

func (r *Resource[K, T]) snapshotLocked() (State[T], []func(State[T])) {
	listeners := make([]func(State[T]), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	return r.state, listeners
}

func notify[T any](listeners []func(State[T]), state State[T]) {
	for _, fn := range listeners {
		fn(state)
	}
}
