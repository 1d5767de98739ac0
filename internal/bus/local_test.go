package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events [][]byte
}

func (r *recorder) Deliver(event []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.events...)
}

func TestLocalBusDeliversToAllMembersIncludingPublisher(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a, c := &recorder{}, &recorder{}

	if err := b.Join(ctx, "chat_1_2", a); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := b.Join(ctx, "chat_1_2", c); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := b.Publish(ctx, "chat_1_2", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, sub := range []*recorder{a, c} {
		events := sub.all()
		if len(events) != 1 || string(events[0]) != "hello" {
			t.Fatalf("expected one delivery of %q, got %v", "hello", events)
		}
	}
}

func TestLocalBusRoomIsolation(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a, c := &recorder{}, &recorder{}
	_ = b.Join(ctx, "chat_1_2", a)
	_ = b.Join(ctx, "chat_3_4", c)

	_ = b.Publish(ctx, "chat_1_2", []byte("x"))

	if len(c.all()) != 0 {
		t.Fatal("event leaked into another room")
	}
}

func TestLocalBusLeaveStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a := &recorder{}
	_ = b.Join(ctx, "chat_1_2", a)
	b.Leave(ctx, "chat_1_2", a)

	_ = b.Publish(ctx, "chat_1_2", []byte("x"))

	if len(a.all()) != 0 {
		t.Fatal("delivery after leave")
	}
}

func TestLocalBusPublisherOrdering(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	a := &recorder{}
	_ = b.Join(ctx, "chat_1_2", a)

	const n = 100
	for i := 0; i < n; i++ {
		_ = b.Publish(ctx, "chat_1_2", []byte(fmt.Sprintf("%d", i)))
	}

	events := a.all()
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	for i, ev := range events {
		if string(ev) != fmt.Sprintf("%d", i) {
			t.Fatalf("event %d out of order: %s", i, ev)
		}
	}
}

func TestLocalBusClosed(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus()
	b.Close()

	if err := b.Join(ctx, "chat_1_2", &recorder{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed from Join, got %v", err)
	}
	if err := b.Publish(ctx, "chat_1_2", []byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed from Publish, got %v", err)
	}
}
