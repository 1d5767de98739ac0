package bus

import (
	"context"
	"sync"

	"github.com/rynok/market/internal/domain"
)

// LocalBus is the in-process Bus. Publish walks the room's subscriber
// set synchronously, so events from one publisher reach every member
// in publish order.
type LocalBus struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomName]map[Subscriber]struct{}
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{rooms: make(map[domain.RoomName]map[Subscriber]struct{})}
}

func (b *LocalBus) Join(_ context.Context, room domain.RoomName, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	set, ok := b.rooms[room]
	if !ok {
		set = make(map[Subscriber]struct{})
		b.rooms[room] = set
	}
	set[sub] = struct{}{}
	return nil
}

func (b *LocalBus) Leave(_ context.Context, room domain.RoomName, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.rooms, room)
	}
}

func (b *LocalBus) Publish(_ context.Context, room domain.RoomName, event []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]Subscriber, 0, len(b.rooms[room]))
	for sub := range b.rooms[room] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	// Deliver outside the lock; Deliver is non-blocking by contract.
	for _, sub := range subs {
		sub.Deliver(event)
	}
	return nil
}

// Close makes every later Join and Publish fail with ErrClosed.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.rooms = make(map[domain.RoomName]map[Subscriber]struct{})
}
