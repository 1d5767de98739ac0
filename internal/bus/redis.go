package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/rynok/market/internal/domain"
)

// RedisBus backs the Bus with Redis pub/sub so rooms span server
// processes. Each process holds one SUBSCRIBE per room with local
// members; inbound payloads fan out to those members, which includes
// the publisher's own connection when it lives in this process.
type RedisBus struct {
	client *redis.Client

	mu    sync.Mutex
	rooms map[domain.RoomName]*redisRoom
}

type redisRoom struct {
	subs   map[Subscriber]struct{}
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewRedisBus(ctx context.Context, redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{
		client: client,
		rooms:  make(map[domain.RoomName]*redisRoom),
	}, nil
}

func (b *RedisBus) Join(ctx context.Context, room domain.RoomName, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[room]
	if !ok {
		pubsub := b.client.Subscribe(context.WithoutCancel(ctx), string(room))
		// Force the subscription onto the wire before the caller
		// publishes its first event into the room.
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		dispatchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		r = &redisRoom{
			subs:   make(map[Subscriber]struct{}),
			pubsub: pubsub,
			cancel: cancel,
		}
		b.rooms[room] = r
		go b.dispatch(dispatchCtx, room, pubsub)
	}
	r.subs[sub] = struct{}{}
	return nil
}

func (b *RedisBus) Leave(_ context.Context, room domain.RoomName, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(r.subs, sub)
	if len(r.subs) == 0 {
		r.cancel()
		_ = r.pubsub.Close()
		delete(b.rooms, room)
	}
}

func (b *RedisBus) Publish(ctx context.Context, room domain.RoomName, event []byte) error {
	return b.client.Publish(ctx, string(room), event).Err()
}

func (b *RedisBus) dispatch(ctx context.Context, room domain.RoomName, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.Warn().Str("module", "bus.redis").Str("room", string(room)).Msg("pubsub channel closed")
				return
			}
			b.mu.Lock()
			r, ok := b.rooms[room]
			if !ok {
				b.mu.Unlock()
				return
			}
			subs := make([]Subscriber, 0, len(r.subs))
			for sub := range r.subs {
				subs = append(subs, sub)
			}
			b.mu.Unlock()
			for _, sub := range subs {
				sub.Deliver([]byte(msg.Payload))
			}
		}
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for room, r := range b.rooms {
		r.cancel()
		_ = r.pubsub.Close()
		delete(b.rooms, room)
	}
	return b.client.Close()
}
