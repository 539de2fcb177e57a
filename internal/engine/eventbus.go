package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitTimeout is returned by Subscription.Next when no event arrived
// within the wait interval.
var ErrWaitTimeout = errors.New("wait timeout")

// EventKind identifies the type of an event on an execution channel.
type EventKind string

const (
	EventFragment EventKind = "fragment"
	EventError    EventKind = "error"
	EventDone     EventKind = "done"
)

// Event is one entry in an execution channel.
type Event struct {
	Kind EventKind
	Text string
}

// Fragment returns a fragment event carrying text.
func Fragment(text string) Event { return Event{Kind: EventFragment, Text: text} }

// ErrorEvent returns an error event carrying a message.
func ErrorEvent(msg string) Event { return Event{Kind: EventError, Text: msg} }

// Done returns the terminal event.
func Done() Event { return Event{Kind: EventDone} }

// Channel is the ordered, unbounded queue of pending events for one execution.
// Reads are destructive: an event handed to a reader is removed.
type Channel struct {
	mu        sync.Mutex
	events    []Event
	published uint64
	finished  bool
	notify    chan struct{}
}

func newChannel() *Channel {
	return &Channel{notify: make(chan struct{}, 1)}
}

func (c *Channel) push(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.published++
	if ev.Kind == EventDone {
		c.finished = true
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) pop() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.events) == 0 {
		return Event{}, false
	}
	ev := c.events[0]
	c.events[0] = Event{}
	c.events = c.events[1:]
	return ev, true
}

// Pending returns the number of unread events.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Drained reports whether Done was published and every event, Done
// included, has been read. A drained channel never yields another event
// for its execution.
func (c *Channel) Drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished && len(c.events) == 0
}

// unreadSince reports whether events published after mark are still queued.
func (c *Channel) unreadSince(mark uint64) (bool, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published > mark && len(c.events) > 0, c.published
}

func (c *Channel) mark() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// Subscription reads events from one channel in publish order.
type Subscription struct {
	ch *Channel
}

// Drained reports whether the underlying channel is drained.
func (s *Subscription) Drained() bool { return s.ch.Drained() }

// Next removes and returns the oldest event, waiting at most wait for one to
// arrive. It returns ErrWaitTimeout if nothing arrived in time and ctx.Err()
// if ctx is done first. Events still queued when the reader stops remain in
// the channel.
func (s *Subscription) Next(ctx context.Context, wait time.Duration) (Event, error) {
	if ev, ok := s.ch.pop(); ok {
		return ev, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-timer.C:
			if ev, ok := s.ch.pop(); ok {
				return ev, nil
			}
			return Event{}, ErrWaitTimeout
		case <-s.ch.notify:
			if ev, ok := s.ch.pop(); ok {
				return ev, nil
			}
		}
	}
}

// EventBus maps execution ids to their event channels. It is safe for
// concurrent use. The registry lock covers only map operations; each channel
// carries its own lock.
type EventBus struct {
	grace time.Duration

	mu       sync.Mutex
	channels map[string]*Channel
	timers   map[string]*time.Timer
}

// NewEventBus creates a bus whose channels are reclaimed grace after
// ScheduleReclaim.
func NewEventBus(grace time.Duration) *EventBus {
	return &EventBus{
		grace:    grace,
		channels: make(map[string]*Channel),
		timers:   make(map[string]*time.Timer),
	}
}

// OpenOrGet returns the channel for id, creating it if absent.
func (b *EventBus) OpenOrGet(id string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[id]
	if !ok {
		ch = newChannel()
		b.channels[id] = ch
		busChannels.Inc()
	}
	return ch
}

// Lookup returns the channel for id without creating one.
func (b *EventBus) Lookup(id string) (*Channel, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[id]
	return ch, ok
}

// Publish appends ev to the channel for id, creating the channel if needed.
// It never blocks on readers.
func (b *EventBus) Publish(id string, ev Event) {
	b.OpenOrGet(id).push(ev)
}

// Subscribe returns a reader bound to the channel for id, creating the
// channel if needed. The subscription keeps reading the same channel even
// if it is reclaimed from the bus.
func (b *EventBus) Subscribe(id string) *Subscription {
	return &Subscription{ch: b.OpenOrGet(id)}
}

// ScheduleReclaim removes the channel for id after the grace period. If
// events published after this call are still unread when the timer fires,
// the timer is re-armed instead.
func (b *EventBus) ScheduleReclaim(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[id]
	if !ok {
		return
	}
	b.armLocked(id, ch, ch.mark())
}

func (b *EventBus) armLocked(id string, ch *Channel, mark uint64) {
	if t, ok := b.timers[id]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(b.grace, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.timers[id] != t || b.channels[id] != ch {
			return
		}
		if active, latest := ch.unreadSince(mark); active {
			b.armLocked(id, ch, latest)
			return
		}
		b.removeLocked(id)
	})
	b.timers[id] = t
}

// Reclaim removes the channel for id immediately. A later OpenOrGet or
// Publish for the same id starts a fresh, empty channel.
func (b *EventBus) Reclaim(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *EventBus) removeLocked(id string) {
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	if _, ok := b.channels[id]; ok {
		delete(b.channels, id)
		busChannels.Dec()
	}
}

// Len returns the number of live channels.
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// Close stops pending reclaim timers and drops every channel.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	busChannels.Sub(float64(len(b.channels)))
	clear(b.channels)
}
