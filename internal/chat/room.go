// Package chat implements the real-time conversation protocol: room
// routing, presence tracking and the per-connection frame engine.
package chat

import (
	"fmt"

	"github.com/rynok/market/internal/domain"
)

// RoomName maps a pair of users to their canonical conversation room.
// The lower ID always comes first, so both sides compute the same
// name no matter who is "self" and who is "peer".
func RoomName(a, b domain.UserID) domain.RoomName {
	if b < a {
		a, b = b, a
	}
	return domain.RoomName(fmt.Sprintf("chat_%d_%d", a, b))
}
