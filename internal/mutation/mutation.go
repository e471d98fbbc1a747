// Package mutation implements single remote writes with a loading flag and
// a human-readable error. Mutations never touch resource state; callers bump
// a refresh.Key after a successful write.
package mutation

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Izileth/lp-ebook/internal/util"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

var mutationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_mutations_total",
		Help: "Remote writes by mutation and outcome.",
	},
	[]string{"mutation", "outcome"},
)

func init() {
	prometheus.MustRegister(mutationsTotal)
}

// Performer executes one write.
type Performer[P, R any] func(ctx context.Context, payload P) (R, error)

type Mutation[P, R any] struct {
	name    string
	perform Performer[P, R]

	mu       sync.Mutex
	inflight int
	err      string
}

func New[P, R any](name string, perform Performer[P, R]) *Mutation[P, R] {
	return &Mutation[P, R]{name: name, perform: perform}
}

func (m *Mutation[P, R]) Name() string { return m.name }

// Perform runs the write exactly once. Double submission is the caller's
// concern; concurrent calls are not merged.
func (m *Mutation[P, R]) Perform(ctx context.Context, payload P) (R, error) {
	m.mu.Lock()
	m.inflight++
	m.err = ""
	m.mu.Unlock()

	out, err := m.call(ctx, payload)

	m.mu.Lock()
	m.inflight--
	m.err = remote.Message(err)
	m.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		util.LoggerFromContext(ctx).Warn("mutation failed", "mutation", m.name, "err", err)
	}
	mutationsTotal.WithLabelValues(m.name, outcome).Inc()
	return out, err
}

// Loading reports whether a Perform call is in flight.
func (m *Mutation[P, R]) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight > 0
}

// Err returns the message of the last failed call, or "".
func (m *Mutation[P, R]) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Mutation[P, R]) call(ctx context.Context, payload P) (out R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panicked: %v", m.name, p)
		}
	}()
	if m.perform == nil {
		return out, remote.ErrUnavailable
	}
	return m.perform(ctx, payload)
}
