package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lightspeed-stack/query-gateway/pkg/authz"
	"github.com/lightspeed-stack/query-gateway/pkg/cache"
	"github.com/lightspeed-stack/query-gateway/pkg/feedback"
	"github.com/lightspeed-stack/query-gateway/pkg/gatewayerr"
	"github.com/lightspeed-stack/query-gateway/pkg/models"
	"github.com/lightspeed-stack/query-gateway/pkg/query"
	"github.com/lightspeed-stack/query-gateway/pkg/services"
	"github.com/lightspeed-stack/query-gateway/pkg/streaming"
	"github.com/lightspeed-stack/query-gateway/pkg/suid"
	"github.com/lightspeed-stack/query-gateway/pkg/version"
)

const readinessTimeout = 5 * time.Second

// Server wires pkg/services into gin handlers, the Go rendering of
// tarsy's pkg/api.Server.
type Server struct {
	svc *services.Services
}

// NewServer constructs a Server over svc.
func NewServer(svc *services.Services) *Server {
	return &Server{svc: svc}
}

func elevated(c *gin.Context) bool {
	return authz.Has(authz.AuthorizedActions(c), authz.ActionQueryOthersConversations)
}

// handleQuery implements POST /v1/query (spec §6, Component I).
func (s *Server) handleQuery(c *gin.Context) {
	var body models.QueryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindMalformedRequest, "invalid request body", err.Error()))
		return
	}

	tuple := requestTuple(c)
	req := query.Request{
		UserID:                   tuple.UserID,
		SkipUserIDCheck:          tuple.SkipUserIDCheck,
		Token:                    tuple.Token,
		MCPHeaders:               c.GetHeader("MCP-HEADERS"),
		AllowModelOverride:       elevated(c),
		AllowOthersConversations: elevated(c),
		Query:                    body,
	}

	result, err := s.svc.Query.Query(c.Request.Context(), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleStreamingQuery implements POST /v1/streaming_query (spec §6,
// Component J). Setup errors are reported as an ordinary JSON error
// response since no SSE bytes have been written yet; once the stream
// starts, failures are reported in-band as `error` frames.
func (s *Server) handleStreamingQuery(c *gin.Context) {
	var body models.QueryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindMalformedRequest, "invalid request body", err.Error()))
		return
	}

	tuple := requestTuple(c)
	req := streaming.Request{
		UserID:                   tuple.UserID,
		SkipUserIDCheck:          tuple.SkipUserIDCheck,
		Token:                    tuple.Token,
		MCPHeaders:               c.GetHeader("MCP-HEADERS"),
		AllowModelOverride:       elevated(c),
		AllowOthersConversations: elevated(c),
		Query:                    body,
	}

	turn, err := s.svc.Streaming.Setup(c.Request.Context(), req)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	w := streaming.NewWriter(c.Writer)
	s.svc.Streaming.Stream(c.Request.Context(), turn, w)
}

// handleFeedback implements POST /v1/feedback.
func (s *Server) handleFeedback(c *gin.Context) {
	var body models.FeedbackRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindMalformedRequest, "invalid request body", err.Error()))
		return
	}

	tuple := requestTuple(c)
	record := feedback.Record{UserID: tuple.UserID, SubmittedAt: time.Now().UTC(), FeedbackRequest: body}
	if err := s.svc.Feedback.Write(suid.New(), record); err != nil {
		if err == feedback.ErrDisabled {
			writeErr(c, gatewayerr.New(gatewayerr.KindForbidden, "feedback submission is currently disabled"))
			return
		}
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindStorageError, "failed to record feedback", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// handleFeedbackStatusGet implements GET /v1/feedback/status (no auth action).
func (s *Server) handleFeedbackStatusGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": s.svc.Feedback.Enabled()})
}

// handleFeedbackStatusPut implements PUT /v1/feedback/status (ADMIN).
func (s *Server) handleFeedbackStatusPut(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindMalformedRequest, "invalid request body", err.Error()))
		return
	}
	s.svc.Feedback.SetEnabled(body.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": body.Enabled})
}

// handleListConversations implements GET /v2/conversations.
func (s *Server) handleListConversations(c *gin.Context) {
	tuple := requestTuple(c)
	list, err := s.svc.Cache.List(c.Request.Context(), tuple.UserID, tuple.SkipUserIDCheck)
	if err != nil {
		writeErr(c, mapCacheErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// handleGetConversation implements GET /v2/conversations/{id}.
func (s *Server) handleGetConversation(c *gin.Context) {
	tuple := requestTuple(c)
	convID := c.Param("id")

	if _, err := query.LoadOwnedConversation(c.Request.Context(), s.svc.Cache, convID, tuple.UserID, tuple.SkipUserIDCheck, elevated(c)); err != nil {
		writeErr(c, err)
		return
	}

	entries, err := s.svc.Cache.Get(c.Request.Context(), tuple.UserID, convID, tuple.SkipUserIDCheck)
	if err != nil {
		writeErr(c, mapCacheErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "chat_history": entries})
}

// handleDeleteConversation implements DELETE /v2/conversations/{id}.
func (s *Server) handleDeleteConversation(c *gin.Context) {
	tuple := requestTuple(c)
	convID := c.Param("id")

	deleted, err := s.svc.Cache.Delete(c.Request.Context(), tuple.UserID, convID, tuple.SkipUserIDCheck)
	if err != nil {
		writeErr(c, mapCacheErr(err))
		return
	}
	if !deleted {
		writeErr(c, gatewayerr.New(gatewayerr.KindConversationNotFound, "Conversation not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleUpdateConversation implements PUT /v2/conversations/{id}.
func (s *Server) handleUpdateConversation(c *gin.Context) {
	var body struct {
		TopicSummary string `json:"topic_summary"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindMalformedRequest, "invalid request body", err.Error()))
		return
	}

	tuple := requestTuple(c)
	convID := c.Param("id")
	if err := s.svc.Cache.SetTopicSummary(c.Request.Context(), tuple.UserID, convID, body.TopicSummary, tuple.SkipUserIDCheck); err != nil {
		writeErr(c, mapCacheErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// handleAuthorized implements POST /authorized: run authentication and
// report the resolved identity, with no further authorization check.
func (s *Server) handleAuthorized(c *gin.Context) {
	tuple := requestTuple(c)
	c.JSON(http.StatusOK, gin.H{"user_id": tuple.UserID, "username": tuple.UserName})
}

// handleModels implements GET /models, a read-only passthrough to the
// upstream's models.list.
func (s *Server) handleModels(c *gin.Context) {
	out, err := s.svc.Upstream.ListModels(c.Request.Context())
	if err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream models", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// handleShields implements GET /shields, a read-only passthrough to the
// upstream's shields.list.
func (s *Server) handleShields(c *gin.Context) {
	out, err := s.svc.Upstream.ListShields(c.Request.Context())
	if err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream shields", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"shields": out})
}

// handleProviders implements GET /providers, a read-only passthrough to
// the upstream's providers.list.
func (s *Server) handleProviders(c *gin.Context) {
	out, err := s.svc.Upstream.ListProviders(c.Request.Context())
	if err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream providers", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// handleTools implements GET /tools: the registered vector databases plus
// the configured MCP server names, the gateway's own view of "tools"
// rather than an upstream passthrough (the upstream has no single
// tools.list operation — see §6's external collaborators table).
func (s *Server) handleTools(c *gin.Context) {
	dbs, err := s.svc.Upstream.ListVectorDBs(c.Request.Context())
	if err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream vector databases", err.Error()))
		return
	}
	names := make([]string, len(s.svc.Config.MCPServers))
	for i, srv := range s.svc.Config.MCPServers {
		names[i] = srv.Name
	}
	c.JSON(http.StatusOK, gin.H{"vector_dbs": dbs, "mcp_servers": names})
}

// handleInfo implements GET /info, a read-only passthrough to the
// upstream's inspect.version.
func (s *Server) handleInfo(c *gin.Context) {
	v, err := s.svc.Upstream.InspectVersion(c.Request.Context())
	if err != nil {
		writeErr(c, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to inspect upstream version", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"gateway_version": version.Full(), "upstream_version": v.Version})
}

// handleConfig implements GET /config: a safe, non-secret subset of the
// loaded configuration.
func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default_model":    s.svc.Config.DefaultModel,
		"default_provider": s.svc.Config.DefaultProvider,
		"cache_backend":    s.svc.Config.Cache.Backend,
		"auth_module":      s.svc.Config.Auth.Module,
	})
}

// handleLiveness implements GET /liveness and /health/liveness: the
// process is up, full stop.
func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// handleReadiness implements GET /readiness and /health/readiness:
// reachability of the upstream gates readiness.
func (s *Server) handleReadiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if _, err := s.svc.Upstream.InspectVersion(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// mapCacheErr translates a cache package error into its matching
// gatewayerr kind, shared by every conversation-management handler.
func mapCacheErr(err error) error {
	switch {
	case err == cache.ErrConversationNotFound:
		return gatewayerr.New(gatewayerr.KindConversationNotFound, "Conversation not found")
	case err == cache.ErrInvalidUserID, err == cache.ErrInvalidConversationID:
		return gatewayerr.Wrap(gatewayerr.KindInvalidConversationID, "invalid conversation_id", err.Error())
	default:
		return gatewayerr.Wrap(gatewayerr.KindStorageError, "cache operation failed", err.Error())
	}
}
