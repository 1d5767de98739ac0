// Package bus provides the group broadcast primitive the chat engine
// publishes room events through. Two implementations exist: an
// in-process bus for single-node deployments and tests, and a Redis
// pub/sub bus for running several server processes behind one
// conversation.
package bus

import (
	"context"
	"errors"

	"github.com/rynok/market/internal/domain"
)

var ErrClosed = errors.New("bus closed")

// Subscriber receives every event published to a room it has joined,
// including events it published itself. Deliver must not block; slow
// consumers drop frames rather than stall the bus.
type Subscriber interface {
	Deliver(event []byte)
}

// Bus fans published events out to every subscriber joined to the
// named room. Events from a single publisher into a single room
// arrive in publish order; ordering across publishers is undefined.
type Bus interface {
	Join(ctx context.Context, room domain.RoomName, sub Subscriber) error
	Leave(ctx context.Context, room domain.RoomName, sub Subscriber)
	Publish(ctx context.Context, room domain.RoomName, event []byte) error
}
