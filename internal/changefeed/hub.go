// Package changefeed fans row-level change notifications out to filtered subscriptions.
package changefeed

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 64

// Source yields change events one at a time. Next returns an error wrapping
// errs.ErrMalformedEvent for a payload that could not be decoded; the source
// remains usable afterwards.
type Source interface {
	Next(ctx context.Context) (model.ChangeEvent, error)
}

// Filter selects events of one table, optionally narrowed to rows whose
// Column equals Value. An empty Column matches the whole table.
type Filter struct {
	Table  string
	Column string
	Value  string
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev model.ChangeEvent) bool {
	if ev.Table != f.Table {
		return false
	}
	if f.Column == "" {
		return true
	}
	v, ok := ev.Field(f.Column)
	return ok && v == f.Value
}

// Hub reads a single Source and delivers matching events to subscriptions.
type Hub struct {
	src Source
	log *zap.Logger
	buf int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	err    error
	done   chan struct{}
}

// NewHub constructs a hub. buf <= 0 selects DefaultBuffer.
func NewHub(src Source, log *zap.Logger, buf int) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if buf <= 0 {
		buf = DefaultBuffer
	}
	return &Hub{src: src, log: log, buf: buf, subs: make(map[*Subscription]struct{}), done: make(chan struct{})}
}

// Subscription is one registered filter. Events are delivered in source order.
type Subscription struct {
	hub    *Hub
	filter Filter
	ch     chan model.ChangeEvent
	once   sync.Once
}

// Events returns the delivery channel; it is closed when the subscription ends.
func (s *Subscription) Events() <-chan model.ChangeEvent { return s.ch }

// Filter returns the subscription's filter.
func (s *Subscription) Filter() Filter { return s.filter }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.hub.subs, s)
		close(s.ch)
	})
}

// Subscribe registers f. Subscribing to a stopped hub returns an already closed subscription.
func (h *Hub) Subscribe(f Filter) *Subscription {
	s := &Subscription{hub: h, filter: f, ch: make(chan model.ChangeEvent, h.buf)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closeLocked()
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Run pumps the source until ctx is done or the source fails, then closes
// every subscription. A cancelled context is not reported as an error.
func (h *Hub) Run(ctx context.Context) (err error) {
	defer func() { h.stop(err) }()
	for {
		ev, err := h.src.Next(ctx)
		switch {
		case err == nil:
			h.dispatch(ev)
		case errors.Is(err, errs.ErrMalformedEvent):
			h.log.Warn("change feed: dropping malformed event", zap.Error(err))
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

func (h *Hub) dispatch(ev model.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.filter.Match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.log.Warn("change feed: subscriber queue full, dropping event",
				zap.String("table", ev.Table),
				zap.String("op", string(ev.Op)),
				zap.String("filter_column", s.filter.Column),
				zap.String("filter_value", s.filter.Value),
			)
		}
	}
}

func (h *Hub) stop(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.err = err
	for s := range h.subs {
		s.closeLocked()
	}
	close(h.done)
}

// Done is closed once the hub has stopped delivering.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Err returns the source failure that stopped the hub. It is nil while the
// hub runs and after a stop caused by context cancellation.
func (h *Hub) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Closed reports whether the hub has stopped delivering.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Consume drains s, calling apply for every event until the subscription
// closes (errs.ErrClosed) or ctx is done. It is the single consumer for s.
func Consume(ctx context.Context, s *Subscription, apply func(context.Context, model.ChangeEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.Events():
			if !ok {
				return errs.ErrClosed
			}
			apply(ctx, ev)
		}
	}
}

// ConsumeBatch is like Consume but hands apply every event already queued
// behind the first one, so a burst collapses into a single call.
func ConsumeBatch(ctx context.Context, s *Subscription, apply func(context.Context, []model.ChangeEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.Events():
			if !ok {
				return errs.ErrClosed
			}
			batch := []model.ChangeEvent{ev}
		drain:
			for {
				select {
				case more, ok := <-s.Events():
					if !ok {
						break drain
					}
					batch = append(batch, more)
				default:
					break drain
				}
			}
			apply(ctx, batch)
		}
	}
}
