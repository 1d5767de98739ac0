// Package http wires the gin router: the websocket chat endpoint plus
// the REST surface for history, chat lists and message management.
package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rynok/market/internal/auth"
	"github.com/rynok/market/internal/chat"
	"github.com/rynok/market/internal/config"
	"github.com/rynok/market/internal/store"
)

func SetupRouter(ctx context.Context, cfg *config.Config, engine *chat.Engine, st store.MessageStore, resolver *auth.Resolver) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(auth.IdentityMiddleware(resolver))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/health", handleHealth(st))

	// The handshake itself is permissive: a bad token degrades to an
	// anonymous socket instead of a 401, the engine rejects its
	// operations instead.
	api.GET("/ws/chat/:partner_id", func(c *gin.Context) {
		engine.HandleChat(ctx, c)
	})

	h := &ChatHandlers{Store: st}
	authed := api.Group("", auth.RequireUser())
	authed.GET("/chats", h.ListConversations)
	authed.GET("/chat/:partner_id/messages", h.History)
	authed.GET("/messages/unread-count", h.UnreadCount)
	authed.PATCH("/messages/:id", h.EditMessage)
	authed.DELETE("/messages/:id", h.DeleteMessage)

	return r
}
