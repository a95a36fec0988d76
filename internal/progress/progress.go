// Package progress is the run's live event feed. A Hub fans events out to
// any number of subscribers without ever blocking the emitter: each
// subscriber owns a bounded ring buffer, and when a slow subscriber falls
// behind its oldest entries are dropped and replaced with a single
// truncation marker so the loss is visible in the stream.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Level tags the severity of an event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one progress entry.
type Event struct {
	TS      time.Time
	Level   Level
	Message string
	// TargetID is set on per-target events and empty on run-level ones.
	TargetID string
}

// DefaultDepth is the per-subscriber buffer depth used when NewHub is given
// a non-positive one.
const DefaultDepth = 256

// Hub broadcasts events to subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	depth  int
	closed bool
	now    func() time.Time
}

// NewHub returns a Hub whose subscribers buffer up to depth events each.
func NewHub(depth int) *Hub {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Hub{
		subs:  make(map[*subscriber]struct{}),
		depth: depth,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Emit delivers the event to every live subscriber. It never blocks; a full
// subscriber buffer drops its oldest entry instead.
func (h *Hub) Emit(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = h.now()
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.push(ev)
	}
}

// Info emits an info-level event.
func (h *Hub) Info(targetID, msg string) {
	h.Emit(Event{Level: LevelInfo, TargetID: targetID, Message: msg})
}

// Warn emits a warn-level event.
func (h *Hub) Warn(targetID, msg string) {
	h.Emit(Event{Level: LevelWarn, TargetID: targetID, Message: msg})
}

// Error emits an error-level event.
func (h *Hub) Error(targetID, msg string) {
	h.Emit(Event{Level: LevelError, TargetID: targetID, Message: msg})
}

// Subscribe returns a channel carrying events emitted after this call. The
// channel is closed when ctx is cancelled or the hub is closed; buffered
// events are still delivered before a hub close takes effect.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	s := &subscriber{
		buf:    make([]Event, h.depth),
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
		now:    h.now,
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.out)
		return s.out
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		s.run(ctx)
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
	}()
	return s.out
}

// Close stops the hub. Subscribers receive what their buffers already hold,
// then their channels close.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

type subscriber struct {
	mu      sync.Mutex
	buf     []Event
	head    int
	n       int
	dropped int

	notify    chan struct{}
	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if s.n == len(s.buf) {
		s.head = (s.head + 1) % len(s.buf)
		s.n--
		s.dropped++
	}
	s.buf[(s.head+s.n)%len(s.buf)] = ev
	s.n++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// next pops the oldest pending event. A pending drop count takes priority
// and surfaces as a synthetic truncation marker.
func (s *subscriber) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped > 0 {
		d := s.dropped
		s.dropped = 0
		return Event{
			TS:      s.now(),
			Level:   LevelWarn,
			Message: fmt.Sprintf("log truncated (%d entries dropped)", d),
		}, true
	}
	if s.n == 0 {
		return Event{}, false
	}
	ev := s.buf[s.head]
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return ev, true
}

func (s *subscriber) run(ctx context.Context) {
	defer close(s.out)
	for {
		ev, ok := s.next()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				// Drain what arrived before the close.
				if ev, ok = s.next(); !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
		select {
		case s.out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
