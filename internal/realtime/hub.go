package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eshaffer321/ledger-balancer/internal/session"
)

// DefaultBuffer is the number of undelivered events a subscriber may hold
// before it is dropped.
const DefaultBuffer = 256

// ErrHubClosed is returned when publishing to a closed hub.
var ErrHubClosed = errors.New("realtime hub closed")

// Publisher publishes events.
type Publisher interface {
	Publish(ev Event) error
}

// Hub fans events out to subscribers.
//
// Publishing never blocks on a subscriber: one whose buffer is full is
// dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seq    map[seqKey]uint64
	buffer int
	closed bool
	logger *slog.Logger
}

type seqKey struct {
	sessionID string
	tag       string
}

// Subscription receives the events of one session and tag.
type Subscription struct {
	listener Listener
	ch       chan Event
	hub      *Hub
}

// NewHub creates a hub. A buffer of zero or less uses DefaultBuffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		seq:    make(map[seqKey]uint64),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscription for sess. Only events matching both
// the session ID and tag are delivered to it.
func (h *Hub) Subscribe(sess session.Session) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscription{
		listener: NewListener(sess),
		ch:       make(chan Event, h.buffer),
		hub:      h,
	}
	h.subs[sub] = struct{}{}
	return sub, nil
}

// Publish assigns ev the next sequence number for its tag and delivers it
// to every matching subscriber. Publishing a done event ends the tag's
// numbering.
func (h *Hub) Publish(ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	key := seqKey{sessionID: ev.SessionID, tag: ev.Tag}
	h.seq[key]++
	ev.Seq = h.seq[key]
	if ev.Name == EventDone {
		// The series is over; a reused tag starts again at 1
		delete(h.seq, key)
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	for sub := range h.subs {
		if !sub.listener.Accept(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping slow subscriber",
				"session_id", ev.SessionID,
				"tag", ev.Tag,
				"event", ev.Name,
			)
			h.removeLocked(sub)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Further publishes fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		h.removeLocked(sub)
	}
	h.closed = true
}

// removeLocked must be called with h.mu held.
func (h *Hub) removeLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Events returns the channel events are delivered on. It is closed when
// the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}
