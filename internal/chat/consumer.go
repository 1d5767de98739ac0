package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rynok/market/internal/auth"
	"github.com/rynok/market/internal/bus"
	"github.com/rynok/market/internal/domain"
	"github.com/rynok/market/internal/store"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

// Engine runs the live chat protocol: one goroutine pair per
// connection, frames handled strictly in arrival order, events fanned
// out through the bus.
type Engine struct {
	Store    store.MessageStore
	Bus      bus.Bus
	Presence *Presence

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewEngine(st store.MessageStore, b bus.Bus, presence *Presence, readLimit int64, pingPeriod time.Duration) *Engine {
	return &Engine{
		Store:      st,
		Bus:        b,
		Presence:   presence,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

// conn is one open websocket bound to a user and their conversation
// room for its whole lifetime.
type conn struct {
	id   ConnID
	user domain.UserID
	room domain.RoomName

	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool

	teardown sync.Once
}

// TrySend queues an outbound payload without blocking. A full buffer
// means the client is too slow; the frame is dropped.
func (c *conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

// Deliver implements bus.Subscriber.
func (c *conn) Deliver(event []byte) {
	if err := c.TrySend(event); err != nil {
		log.Warn().Str("module", "chat").Str("conn", string(c.id)).Err(err).Msg("dropping event")
	}
}

func (c *conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleChat upgrades /api/ws/chat/:partner_id. The identity comes
// from the token middleware; an unverified token still gets a socket,
// but one that refuses every operation until reconnect with a valid
// token.
func (e *Engine) HandleChat(ctx context.Context, c *gin.Context) {
	self := auth.Identity(c)
	partner, err := strconv.ParseInt(c.Param("partner_id"), 10, 64)
	if err != nil || partner <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid partner id"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "chat").Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(e.ReadLimit)

	cn := &conn{
		id:   ConnID(uuid.NewString()),
		user: self,
		ws:   ws,
		send: make(chan []byte, 32),
	}

	if self.IsAnonymous() {
		// Degraded connection: socket stays open so the client can
		// learn why, but nothing is registered or joined.
		log.Info().Str("module", "chat").Str("conn", string(cn.id)).Msg("anonymous connection")
		e.sendJSON(cn, errorEvent{Type: "error", Error: "authentication required"})
	} else {
		cn.room = RoomName(self, domain.UserID(partner))
		if err := e.connect(ctx, cn); err != nil {
			log.Error().Str("module", "chat").Err(err).Int64("user", int64(self)).Msg("connect failed")
			cn.Close()
			return
		}
	}

	connCtx, cancel := context.WithCancel(ctx)
	go e.writePump(connCtx, cn)
	go e.readPump(connCtx, cancel, cn)
}

// connect performs the handshake-time setup. On any failure the steps
// already taken are undone so no partial state survives.
func (e *Engine) connect(ctx context.Context, cn *conn) error {
	e.Presence.Register(cn.user, cn.id)
	if err := e.Bus.Join(ctx, cn.room, cn); err != nil {
		e.Presence.Unregister(cn.user, cn.id)
		return err
	}
	e.publish(ctx, cn, statusEvent{Type: "status", UserID: cn.user, Status: "online"})
	log.Info().Str("module", "chat").Int64("user", int64(cn.user)).Str("room", string(cn.room)).Msg("connected")
	return nil
}

// disconnect runs the teardown exactly once. Presence is updated
// before the offline event so a concurrent check_online never races
// ahead of the broadcast.
func (e *Engine) disconnect(cn *conn) {
	cn.teardown.Do(func() {
		if !cn.user.IsAnonymous() {
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			defer cancel()
			if e.Presence.Unregister(cn.user, cn.id) {
				e.publish(ctx, cn, statusEvent{Type: "status", UserID: cn.user, Status: "offline"})
			}
			e.Bus.Leave(ctx, cn.room, cn)
		}
		cn.Close()
		log.Info().Str("module", "chat").Int64("user", int64(cn.user)).Str("room", string(cn.room)).Msg("disconnected")
	})
}

func (e *Engine) writePump(ctx context.Context, cn *conn) {
	ticker := time.NewTicker(e.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-cn.send:
			if !ok {
				return
			}
			if err := cn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Str("module", "chat").Err(err).Msg("writePump set deadline")
				return
			}
			if err := cn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Str("module", "chat").Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (e *Engine) readPump(ctx context.Context, cancel context.CancelFunc, cn *conn) {
	defer func() {
		cancel()
		e.disconnect(cn)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := cn.ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Str("module", "chat").Str("conn", string(cn.id)).Err(err).Msg("read error")
				}
				return
			}
			// One frame at a time: the next read does not start until
			// this frame is fully handled.
			e.handleFrame(ctx, cn, data)
		}
	}
}

// publish sends an event into the connection's room. On bus failure it
// falls back to delivering only to the originating connection, so the
// sender still sees its own result; other members catch up from
// history.
func (e *Engine) publish(ctx context.Context, cn *conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "chat").Err(err).Msg("marshal event")
		return
	}
	if err := e.Bus.Publish(ctx, cn.room, data); err != nil {
		log.Error().Str("module", "chat").Str("room", string(cn.room)).Err(err).Msg("publish failed, delivering to self")
		cn.Deliver(data)
	}
}

// sendJSON unicasts to one connection, bypassing the bus.
func (e *Engine) sendJSON(cn *conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "chat").Err(err).Msg("marshal unicast")
		return
	}
	cn.Deliver(data)
}
