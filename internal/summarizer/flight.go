package summarizer

import (
	"context"
	"log/slog"
	"sync"
)

// flight is one in-progress summarization shared by every caller asking for
// the same document. Events are kept so late subscribers see the whole stream.
// Emitters are only ever called from their subscriber's own goroutine, so a
// stalled stream never holds f.mu.
type flight struct {
	mu      sync.Mutex
	events  []Event
	subs    map[*subscriber]struct{}
	waiters int
	cancel  context.CancelFunc
	log     *slog.Logger

	done     chan struct{}
	finished bool
	result   *Result
	err      error
}

func newFlight(cancel context.CancelFunc, log *slog.Logger) *flight {
	return &flight{
		subs:   make(map[*subscriber]struct{}),
		cancel: cancel,
		log:    log,
		done:   make(chan struct{}),
	}
}

// subscribe registers a waiter. The events published so far are queued for
// it before any later one.
func (f *flight) subscribe(emitter Emitter) *subscriber {
	sub := newSubscriber(emitter, f.log)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.subs[sub] = struct{}{}
	f.waiters++
	sub.push(f.events...)
	if f.finished {
		sub.close()
	}
	return sub
}

// unsubscribe removes a waiter and reports whether it was the last one.
func (f *flight) unsubscribe(sub *subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[sub]; !ok {
		return false
	}
	delete(f.subs, sub)
	f.waiters--
	return f.waiters == 0
}

func (f *flight) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, ev)
	for sub := range f.subs {
		sub.push(ev)
	}
}

func (f *flight) finish(result *Result, err error) {
	var last Event
	if err != nil {
		last = errorEvent(err)
	} else {
		last = doneEvent(result.Summary, result.FromCache)
	}

	f.mu.Lock()
	f.events = append(f.events, last)
	f.result, f.err = result, err
	f.finished = true
	for sub := range f.subs {
		sub.push(last)
		sub.close()
	}
	f.mu.Unlock()

	close(f.done)
	f.cancel()
}

// subscriber delivers queued events to one emitter in order.
type subscriber struct {
	emitter Emitter
	log     *slog.Logger

	mu        sync.Mutex
	queue     []Event
	closed    bool
	abandoned bool
	wake      chan struct{}
	drained   chan struct{}
}

func newSubscriber(emitter Emitter, log *slog.Logger) *subscriber {
	s := &subscriber{
		emitter: emitter,
		log:     log,
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	if emitter == nil {
		s.closed = true
		close(s.drained)
		return s
	}
	go s.run()
	return s
}

func (s *subscriber) push(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, evs...)
	}
	s.mu.Unlock()
	s.signal()
}

// close lets the delivery goroutine exit once the queue is empty.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// abandon drops undelivered events and stops delivery.
func (s *subscriber) abandon() {
	s.mu.Lock()
	s.queue = nil
	s.closed = true
	s.abandoned = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) isAbandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.drained)
	for {
		s.mu.Lock()
		batch, closed := s.queue, s.closed
		s.queue = nil
		s.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-s.wake
			continue
		}

		for _, ev := range batch {
			if s.isAbandoned() {
				return
			}
			// A subscriber whose emitter fails stops receiving events but
			// keeps waiting for the result.
			if err := s.emitter.Emit(ev); err != nil {
				s.log.Warn("progress subscriber dropped", "error", err)
				s.abandon()
				return
			}
		}
	}
}
