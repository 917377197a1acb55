package markerbus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/care/painter/internal/types"
)

var (
	ErrBusClosed          = errors.New("markerbus: bus is closed")
	ErrSubscriberExists   = errors.New("markerbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("markerbus: subscriber not found")
	ErrNilChannel         = errors.New("markerbus: nil channel provided")
	ErrReceiverClosed     = errors.New("markerbus: receiver is closed")
)

// DropPolicy defines how the bus handles markers a subscriber cannot take
type DropPolicy int

const (
	DropNew DropPolicy = iota
	DropOld
)

// String returns the policy name
func (p DropPolicy) String() string {
	if p == DropOld {
		return "drop_old"
	}
	return "drop_new"
}

// Receiver gives access to the latest marker of a DropOld subscriber
type Receiver interface {
	// Next blocks until a marker with sequence greater than after is held.
	// ok is false once the receiver is closed.
	Next(after uint64) (m types.Marker, seq uint64, ok bool)
	TryReceive() (types.Marker, bool)
	Close()
}

// SubscriberStats tracks per-subscriber distribution
type SubscriberStats struct {
	Policy  string `json:"policy"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Stats contains bus-wide counters
type Stats struct {
	TotalPublished uint64                     `json:"total_published"`
	TotalSent      uint64                     `json:"total_sent"`
	TotalDropped   uint64                     `json:"total_dropped"`
	Subscribers    map[string]SubscriberStats `json:"subscribers"`
}

type subscriber struct {
	policy  DropPolicy
	sent    atomic.Uint64
	dropped atomic.Uint64

	ch     chan<- types.Marker // DropNew
	latest *latestHolder       // DropOld
}

// Bus distributes markers to viewers
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished atomic.Uint64
	closed         bool
}

// New creates an empty bus
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch with DropNew policy
func (b *Bus) Subscribe(id string, ch chan<- types.Marker) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber{policy: DropNew, ch: ch}
	return nil
}

// SubscribeLatest registers a DropOld receiver
func (b *Bus) SubscribeLatest(id string) (Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	h := newLatestHolder()
	b.subscribers[id] = &subscriber{policy: DropOld, latest: h}
	return h, nil
}

// Publish hands m to every subscriber without blocking. No-op after Close.
func (b *Bus) Publish(m types.Marker) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.totalPublished.Add(1)

	for _, sub := range b.subscribers {
		switch sub.policy {
		case DropNew:
			select {
			case sub.ch <- m:
				sub.sent.Add(1)
			default:
				sub.dropped.Add(1)
			}

		case DropOld:
			if sub.latest.Set(m) == nil {
				sub.sent.Add(1)
			}
		}
	}
}

// Unsubscribe removes a subscriber, closing its receiver if any
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if sub.latest != nil {
		sub.latest.Close()
	}

	delete(b.subscribers, id)
	return nil
}

// SubscriberCount returns the number of registered subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Stats returns a snapshot of the distribution counters
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, sub := range b.subscribers {
		s := SubscriberStats{
			Policy:  sub.policy.String(),
			Sent:    sub.sent.Load(),
			Dropped: sub.dropped.Load(),
		}
		stats.TotalSent += s.Sent
		stats.TotalDropped += s.Dropped
		stats.Subscribers[id] = s
	}
	return stats
}

// Close shuts down the bus and releases every blocked receiver. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		if sub.latest != nil {
			sub.latest.Close()
		}
	}
	b.subscribers = nil
}

// latestHolder implements Receiver for the DropOld policy
type latestHolder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	marker types.Marker
	seq    uint64
	closed bool
}

func newLatestHolder() *latestHolder {
	h := &latestHolder{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *latestHolder) Set(m types.Marker) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrReceiverClosed
	}

	h.marker = m
	h.seq++
	h.cond.Broadcast()
	return nil
}

func (h *latestHolder) Next(after uint64) (types.Marker, uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.seq <= after && !h.closed {
		h.cond.Wait()
	}
	if h.closed {
		return types.Marker{}, h.seq, false
	}
	return h.marker, h.seq, true
}

func (h *latestHolder) TryReceive() (types.Marker, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.seq == 0 {
		return types.Marker{}, false
	}
	return h.marker, true
}

func (h *latestHolder) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}
