package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lightspeed-stack/query-gateway/pkg/authz"
	"github.com/lightspeed-stack/query-gateway/pkg/services"
)

// NewRouter builds the gin.Engine exposing every route in the gateway's
// HTTP surface, wired to svc. Each versioned/action route runs
// authMiddleware then authz.Middleware for its Action; read-only
// passthroughs and health checks run unauthenticated, matching the
// external interface table.
func NewRouter(svc *services.Services) *gin.Engine {
	s := NewServer(svc)
	r := gin.New()
	r.Use(gin.Recovery())

	authed := authMiddleware(svc.Auth)
	authzFor := func(action authz.Action) gin.HandlerFunc {
		return authz.Middleware(action, svc.RoleResolver, svc.AccessResolver)
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/query", authed, authzFor(authz.ActionQuery), s.handleQuery)
		v1.POST("/streaming_query", authed, authzFor(authz.ActionStreamingQuery), s.handleStreamingQuery)
		v1.POST("/feedback", authed, authzFor(authz.ActionFeedback), s.handleFeedback)
		v1.GET("/feedback/status", s.handleFeedbackStatusGet)
		v1.PUT("/feedback/status", authed, authzFor(authz.ActionAdmin), s.handleFeedbackStatusPut)
	}

	v2 := r.Group("/v2/conversations")
	{
		v2.GET("", authed, authzFor(authz.ActionListConversations), s.handleListConversations)
		v2.GET("/:id", authed, authzFor(authz.ActionGetConversation), s.handleGetConversation)
		v2.DELETE("/:id", authed, authzFor(authz.ActionDeleteConversation), s.handleDeleteConversation)
		v2.PUT("/:id", authed, authzFor(authz.ActionUpdateConversation), s.handleUpdateConversation)
	}

	r.POST("/authorized", authed, s.handleAuthorized)

	r.GET("/info", s.handleInfo)
	r.GET("/models", s.handleModels)
	r.GET("/tools", s.handleTools)
	r.GET("/shields", s.handleShields)
	r.GET("/providers", s.handleProviders)
	r.GET("/config", s.handleConfig)

	r.GET("/liveness", s.handleLiveness)
	r.GET("/readiness", s.handleReadiness)
	r.GET("/health/liveness", s.handleLiveness)
	r.GET("/health/readiness", s.handleReadiness)

	r.GET("/metrics", authed, authzFor(authz.ActionGetMetrics), gin.WrapH(promhttp.HandlerFor(svc.Registry, promhttp.HandlerOpts{})))

	return r
}
