package chat

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rynok/market/internal/domain"
)

// ConnID addresses one open connection inside the presence registry
// and the broadcast bus. A user with two tabs open holds two ConnIDs.
type ConnID string

// Presence is the process-local online/offline registry. A user is
// online iff at least one connection is registered for them. Entries
// are removed entirely once their last connection unregisters, so the
// map never accumulates empty sets.
//
// Presence is scoped to a single server process. Behind a distributed
// bus a user connected to another process looks offline here; see
// DESIGN.md for why this stays as is.
type Presence struct {
	mu    sync.Mutex
	conns map[domain.UserID]map[ConnID]struct{}
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[domain.UserID]map[ConnID]struct{})}
}

// Register adds the connection to the user's set and reports whether
// the user just came online (had no connections before).
func (p *Presence) Register(user domain.UserID, conn ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.conns[user]
	if !ok {
		set = make(map[ConnID]struct{})
		p.conns[user] = set
	}
	set[conn] = struct{}{}
	log.Debug().Str("module", "chat.presence").Int64("user", int64(user)).Str("conn", string(conn)).Msg("registered connection")
	return !ok
}

// Unregister removes the connection and reports whether the user went
// fully offline as a result. Unknown pairs are a no-op.
func (p *Presence) Unregister(user domain.UserID, conn ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.conns[user]
	if !ok {
		return false
	}
	delete(set, conn)
	if len(set) > 0 {
		return false
	}
	delete(p.conns, user)
	log.Debug().Str("module", "chat.presence").Int64("user", int64(user)).Msg("user fully offline")
	return true
}

func (p *Presence) IsOnline(user domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[user]) > 0
}
