package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/portal"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// PortalHandler exposes the portal core over HTTP.
type PortalHandler struct {
	portal   *portal.Portal
	sessions middleware.SessionResolver
	logger   ectologger.Logger
}

func NewPortalHandler(p *portal.Portal, sessions middleware.SessionResolver, logger ectologger.Logger) *PortalHandler {
	return &PortalHandler{portal: p, sessions: sessions, logger: logger}
}

// Register mounts the API on g. Everything but login requires the session bearer token.
func (h *PortalHandler) Register(g *echo.Group) {
	g.POST("/auth/login", h.Login)

	authed := g.Group("", middleware.Session(h.logger, h.sessions))
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/me", h.Me)

	authed.GET("/status", h.Status)
	authed.GET("/stats", h.Stats)
	authed.POST("/sync", h.SyncNow)
	authed.PUT("/settings/namespace", h.SetNamespace)

	conversations := authed.Group("/conversations")
	conversations.GET("", h.ListConversations)
	conversations.DELETE("", h.ClearLocalChats)
	conversations.GET("/:id/messages", h.ListMessages)
	conversations.POST("/:id/messages", h.SendMessage)
	conversations.POST("/:id/sync", h.SyncConversation)
	conversations.PATCH("/:id/status", h.UpdateConversationStatus)
	conversations.DELETE("/:id", h.DeleteConversation)

	agents := authed.Group("/agents")
	agents.GET("", h.ListAgents)
	agents.POST("", h.AddAgent)
	agents.PUT("/me/status", h.SetPresence)
	agents.DELETE("/:id", h.RemoveAgent)
	agents.PUT("/:id/password", h.ChangeCredential)
	agents.PUT("/:id/role", h.ChangeRole)

	pages := authed.Group("/pages")
	pages.GET("", h.ListPages)
	pages.POST("/import", h.ImportPages)
	pages.DELETE("/:id", h.RemovePage)
	pages.POST("/:id/verify", h.VerifyPage)
	pages.PUT("/:id/agents/:agent_id", h.AssignAgent)
	pages.DELETE("/:id/agents/:agent_id", h.UnassignAgent)

	library := authed.Group("/library")
	library.GET("/links", h.ListLinks)
	library.POST("/links", h.AddLink)
	library.DELETE("/links/:id", h.RemoveLink)
	library.GET("/media", h.ListMedia)
	library.POST("/media", h.AddMedia)
	library.DELETE("/media/:id", h.RemoveMedia)
}

func (h *PortalHandler) begin(c echo.Context, name string) (context.Context, trace.Span) {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PortalHandler."+name)
	c.SetRequest(c.Request().WithContext(ctx))
	return ctx, span
}
