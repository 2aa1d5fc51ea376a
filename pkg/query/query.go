// Package query implements the unary query handler (spec §4.I,
// Component I): one full turn from request validation through upstream
// invocation, persistence, transcript write, and quota consumption.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightspeed-stack/query-gateway/pkg/agentregistry"
	"github.com/lightspeed-stack/query-gateway/pkg/cache"
	"github.com/lightspeed-stack/query-gateway/pkg/docs"
	"github.com/lightspeed-stack/query-gateway/pkg/gatewayerr"
	"github.com/lightspeed-stack/query-gateway/pkg/metrics"
	"github.com/lightspeed-stack/query-gateway/pkg/models"
	"github.com/lightspeed-stack/query-gateway/pkg/quota"
	"github.com/lightspeed-stack/query-gateway/pkg/shields"
	"github.com/lightspeed-stack/query-gateway/pkg/suid"
	"github.com/lightspeed-stack/query-gateway/pkg/toolcomposer"
	"github.com/lightspeed-stack/query-gateway/pkg/transcripts"
	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

// Config is the handler's static configuration.
type Config struct {
	DefaultModel        string
	DefaultProvider     string
	DefaultSystemPrompt string
	SummarySystemPrompt string
	MCPServers          []toolcomposer.MCPServer
}

// Handler orchestrates one unary turn (spec §4.I). It is safe for
// concurrent use: every field is either immutable after construction or
// itself safe for concurrent use (the upstream client, the cache
// backend, the limiters, the shared metrics instance).
type Handler struct {
	Client      upstream.Client
	Cache       cache.Cache
	Limiters    []quota.Limiter
	Transcripts *transcripts.Writer
	Metrics     *metrics.Metrics
	Config      Config
}

// Request bundles the per-call context the HTTP layer has already
// resolved: the authenticated principal and the capabilities derived
// from its roles, decoupling this package from pkg/authz's Action type.
type Request struct {
	UserID                   string
	SkipUserIDCheck          bool
	Token                    string
	MCPHeaders               string
	AllowModelOverride       bool // holder of QUERY_OTHERS_CONVERSATIONS
	AllowOthersConversations bool
	Query                    models.QueryRequest
}

// Result is the response shape of a completed unary turn (spec §4.I step 16).
type Result struct {
	ConversationID      string
	Response            string
	RAGChunks           []string // always empty: chunks (content) are distinct from referenced documents (citations), per spec §9 open question
	ToolCalls           []models.ToolCallSummary
	ReferencedDocuments []models.ReferencedDocument
	Truncated           bool
	InputTokens         int
	OutputTokens        int
	AvailableQuotas     map[string]int
}

// Query runs steps 1-16 of spec §4.I for one request.
func (h *Handler) Query(ctx context.Context, req Request) (*Result, error) {
	if h.Client == nil || h.Cache == nil {
		return nil, gatewayerr.New(gatewayerr.KindConfigurationMissing, "gateway is not configured")
	}

	q := req.Query
	if !req.AllowModelOverride && q.HasModelOverride() {
		return nil, gatewayerr.New(gatewayerr.KindForbidden, "model/provider override requires elevated access")
	}
	if err := q.Validate(); err != nil {
		return nil, MapValidationErr(err)
	}

	startedAt := time.Now().UTC()
	isNewConversation := q.ConversationID == ""

	var existing *models.UserConversation
	if !isNewConversation {
		uc, err := LoadOwnedConversation(ctx, h.Cache, req.Query.ConversationID, req.UserID, req.SkipUserIDCheck, req.AllowOthersConversations)
		if err != nil {
			return nil, err
		}
		existing = uc
	}

	if err := quota.EnsureAvailableAll(ctx, h.Limiters, req.UserID); err != nil {
		return nil, MapQuotaErr(err)
	}

	availableModels, err := h.Client.ListModels(ctx)
	if err != nil {
		h.callFailed()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream models", err.Error())
	}
	modelID, providerID, err := ResolveModelProvider(q, existing, h.Config, availableModels)
	if err != nil {
		return nil, err
	}

	shieldList, err := h.Client.ListShields(ctx)
	if err != nil {
		h.callFailed()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream shields", err.Error())
	}
	inputShields, outputShields := shields.Classify(ShieldIdentifiers(shieldList))

	systemPrompt := q.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = h.Config.DefaultSystemPrompt
	}

	agentResult, err := agentregistry.GetOrCreateAgent(ctx, h.Client, agentregistry.Params{
		Model:          modelID,
		SystemPrompt:   systemPrompt,
		InputShields:   inputShields,
		OutputShields:  outputShields,
		ConversationID: q.ConversationID,
		NoTools:        q.NoTools,
	})
	if err != nil {
		h.callFailed()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to prepare agent", err.Error())
	}
	conversationID := agentResult.ConversationID

	vectorDBIDs, err := h.listVectorDBIDs(ctx, q.NoTools)
	if err != nil {
		h.callFailed()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list vector databases", err.Error())
	}
	tc := toolcomposer.Compose(toolcomposer.Request{
		NoTools:     q.NoTools,
		VectorDBIDs: vectorDBIDs,
		MCPServers:  h.Config.MCPServers,
		MCPHeaders:  req.MCPHeaders,
		BearerToken: req.Token,
	})

	documents := AttachmentsToDocuments(q.Attachments)

	topicSummary := ""
	if isNewConversation {
		topicSummary = h.generateTopicSummary(ctx, modelID, systemPrompt, q.Query)
	}

	turn, err := h.Client.CreateTurn(ctx, upstream.CreateTurnParams{
		AgentID:      agentResult.AgentID,
		SessionID:    agentResult.SessionID,
		Messages:     []upstream.Message{{Role: "user", Content: q.Query}},
		Documents:    documents,
		Toolgroups:   tc.Toolgroups,
		ExtraHeaders: tc.ExtraHeaders,
	})
	if err != nil {
		var rateLimited *upstream.RateLimitedError
		if errors.As(err, &rateLimited) {
			return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamRateLimited, "rate limited by upstream model", rateLimited.Error())
		}
		h.callFailed()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "turn failed", err.Error())
	}

	toolCalls, toolResponses := collectToolActivity(turn.Steps)
	referencedDocuments := docs.FromToolResponses(toolResponses)

	for _, step := range turn.Steps {
		if step.StepType == string(upstream.StepTypeShieldCall) && step.ShieldViolation != nil {
			h.shieldViolation()
		}
	}

	completedAt := time.Now().UTC()
	turnID := suid.New()

	if h.Transcripts.Enabled() {
		record := transcripts.Record{
			UserID:         req.UserID,
			ConversationID: conversationID,
			Query:          q.Query,
			Validated:      true,
			Response:       turn.OutputMessage.Content,
			ReferencedDocs: referencedDocuments,
			Attachments:    q.Attachments,
			ToolCalls:      toolCalls,
			StartedAt:      startedAt,
			CompletedAt:    completedAt,
		}
		if err := h.Transcripts.Write(req.UserID, conversationID, turnID, record); err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindStorageError, "failed to write transcript", err.Error())
		}
	}

	entry := cache.Entry{
		Query:               q.Query,
		Response:            turn.OutputMessage.Content,
		Provider:            providerID,
		Model:               modelID,
		StartedAt:           startedAt,
		CompletedAt:         completedAt,
		ReferencedDocuments: referencedDocuments,
	}
	if err := h.Cache.Insert(ctx, req.UserID, conversationID, entry, req.SkipUserIDCheck); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageError, "failed to persist conversation turn", err.Error())
	}
	if isNewConversation {
		if err := h.Cache.SetTopicSummary(ctx, req.UserID, conversationID, topicSummary, req.SkipUserIDCheck); err != nil {
			slog.Warn("query: failed to set initial topic summary", "conversation_id", conversationID, "error", err)
		}
	}

	quotaErrs := quota.ConsumeAll(ctx, h.Limiters, req.UserID, turn.Usage.InputTokens, turn.Usage.OutputTokens)
	for _, err := range quotaErrs {
		slog.Error("query: quota consumption failed", "user_id", req.UserID, "error", err)
	}

	h.callStarted(providerID, modelID)
	h.tokensUsed(providerID, modelID, turn.Usage.InputTokens, turn.Usage.OutputTokens)

	available := h.availableQuotas(ctx, req.UserID)

	return &Result{
		ConversationID:      conversationID,
		Response:            turn.OutputMessage.Content,
		RAGChunks:           []string{},
		ToolCalls:           toolCalls,
		ReferencedDocuments: referencedDocuments,
		Truncated:           false,
		InputTokens:         turn.Usage.InputTokens,
		OutputTokens:        turn.Usage.OutputTokens,
		AvailableQuotas:     available,
	}, nil
}

// LoadOwnedConversation implements spec §4.I step 3: load the
// UserConversation row and enforce the ownership invariant, returning an
// opaque 404 (not 403) on either a missing row or a cross-user access
// attempt without elevated capability, to avoid leaking existence. Shared
// by the unary and streaming handlers, which apply the identical check
// per spec §4.J ("same setup as §4.I steps 1-7").
func LoadOwnedConversation(ctx context.Context, c cache.Cache, convID, userID string, skipUserIDCheck, allowOthersConversations bool) (*models.UserConversation, error) {
	uc, err := c.GetConversation(ctx, userID, convID, skipUserIDCheck)
	switch {
	case errors.Is(err, cache.ErrConversationNotFound):
		return nil, gatewayerr.New(gatewayerr.KindConversationNotFound, "Conversation not found")
	case errors.Is(err, cache.ErrInvalidUserID), errors.Is(err, cache.ErrInvalidConversationID):
		return nil, gatewayerr.Wrap(gatewayerr.KindInvalidConversationID, "invalid conversation_id", err.Error())
	case err != nil:
		return nil, gatewayerr.Wrap(gatewayerr.KindStorageError, "failed to load conversation", err.Error())
	}
	if uc.UserID != userID && !allowOthersConversations {
		return nil, gatewayerr.New(gatewayerr.KindConversationNotFound, "Conversation not found")
	}
	return uc, nil
}

// generateTopicSummary asks the upstream for a one-shot summary turn on a
// scratch agent. Failures are locally recovered per spec §7: substitute
// the empty string rather than fail the whole request.
func (h *Handler) generateTopicSummary(ctx context.Context, modelID, systemPrompt, query string) string {
	prompt := h.Config.SummarySystemPrompt
	if prompt == "" {
		prompt = "Summarize the user's request in a few words for use as a conversation title."
	}

	scratch, err := agentregistry.GetOrCreateAgent(ctx, h.Client, agentregistry.Params{
		Model:        modelID,
		SystemPrompt: prompt,
		NoTools:      true,
	})
	if err != nil {
		slog.Warn("query: failed to create scratch agent for topic summary", "error", err)
		return ""
	}
	defer func() {
		if err := h.Client.Agents().Delete(ctx, scratch.AgentID); err != nil {
			slog.Warn("query: failed to delete scratch topic-summary agent", "agent_id", scratch.AgentID, "error", err)
		}
	}()

	turn, err := h.Client.CreateTurn(ctx, upstream.CreateTurnParams{
		AgentID:   scratch.AgentID,
		SessionID: scratch.SessionID,
		Messages:  []upstream.Message{{Role: "user", Content: query}},
	})
	if err != nil {
		slog.Warn("query: topic summary turn failed", "error", err)
		return ""
	}
	_ = systemPrompt
	return turn.OutputMessage.Content
}

// listVectorDBIDs returns every registered vector database's identifier,
// or nil immediately when tools are disabled (no need to ask upstream).
func (h *Handler) listVectorDBIDs(ctx context.Context, noTools bool) ([]string, error) {
	if noTools {
		return nil, nil
	}
	dbs, err := h.Client.ListVectorDBs(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(dbs))
	for _, db := range dbs {
		ids = append(ids, db.Identifier)
	}
	return ids, nil
}

func (h *Handler) availableQuotas(ctx context.Context, userID string) map[string]int {
	out := make(map[string]int, len(h.Limiters))
	for _, l := range h.Limiters {
		n, err := l.Available(ctx, userID)
		if err != nil {
			slog.Warn("query: failed to read available quota", "limiter", l.Name(), "error", err)
			continue
		}
		out[l.Name()] = n
	}
	return out
}

// ShieldIdentifiers flattens the upstream shield list to bare identifiers
// for pkg/shields.Classify. Shared by the unary and streaming handlers.
func ShieldIdentifiers(shieldList []upstream.Shield) []string {
	ids := make([]string, len(shieldList))
	for i, s := range shieldList {
		ids[i] = s.Identifier
	}
	return ids
}

// AttachmentsToDocuments converts validated request attachments to the
// upstream's inline-document shape. Shared by the unary and streaming
// handlers.
func AttachmentsToDocuments(attachments []models.Attachment) []upstream.Document {
	if len(attachments) == 0 {
		return nil
	}
	docs := make([]upstream.Document, len(attachments))
	for i, a := range attachments {
		docs[i] = upstream.Document{Content: a.Content, ContentType: a.ContentType}
	}
	return docs
}

// collectToolActivity flattens every tool_execution step's calls and
// responses into the gateway's ToolCallSummary shape and the raw
// ToolResponseInfo list pkg/docs needs.
func collectToolActivity(steps []upstream.StepResult) ([]models.ToolCallSummary, []upstream.ToolResponseInfo) {
	var summaries []models.ToolCallSummary
	var responses []upstream.ToolResponseInfo

	for _, step := range steps {
		if step.StepType != string(upstream.StepTypeToolExecution) {
			continue
		}
		responseByCallID := make(map[string]string, len(step.ToolResponses))
		for _, r := range step.ToolResponses {
			responseByCallID[r.CallID] = joinContent(r.Content)
			responses = append(responses, r)
		}
		for _, c := range step.ToolCalls {
			summaries = append(summaries, models.ToolCallSummary{
				ID:       c.CallID,
				Name:     c.ToolName,
				Args:     c.Arguments,
				Response: responseByCallID[c.CallID],
			})
		}
	}
	return summaries, responses
}

func joinContent(content []string) string {
	if len(content) == 0 {
		return ""
	}
	out := content[0]
	for _, c := range content[1:] {
		out += "\n" + c
	}
	return out
}

// MapValidationErr translates a models.Validate error into the matching
// gatewayerr kind. Shared by the unary and streaming handlers.
func MapValidationErr(err error) error {
	if errors.Is(err, models.ErrInvalidAttachment) {
		return gatewayerr.Wrap(gatewayerr.KindInvalidAttachment, "invalid attachment", err.Error())
	}
	return gatewayerr.Wrap(gatewayerr.KindMalformedRequest, "invalid request", err.Error())
}

// MapQuotaErr translates a quota pre-check error into the matching
// gatewayerr kind. Shared by the unary and streaming handlers.
func MapQuotaErr(err error) error {
	var qe *quota.QuotaExceeded
	if errors.As(err, &qe) {
		return gatewayerr.Wrap(gatewayerr.KindQuotaExceeded, fmt.Sprintf("quota exceeded on %s", qe.LimiterName), err.Error())
	}
	return gatewayerr.Wrap(gatewayerr.KindStorageError, "failed to check quota", err.Error())
}

// ResolveModelProvider implements spec §4.I step 5: request values take
// precedence, else the conversation's last-used pair, else configured
// defaults, else the first available LLM-typed model. The resolved pair
// is validated against the upstream's model list. Shared by the unary and
// streaming handlers.
func ResolveModelProvider(q models.QueryRequest, existing *models.UserConversation, cfg Config, available []upstream.Model) (string, string, error) {
	modelID, providerID := q.Model, q.Provider

	if modelID == "" && existing != nil && existing.LastUsedModel != "" && existing.LastUsedProvider != "" {
		modelID, providerID = existing.LastUsedModel, existing.LastUsedProvider
	}
	if modelID == "" && cfg.DefaultModel != "" && cfg.DefaultProvider != "" {
		modelID, providerID = cfg.DefaultModel, cfg.DefaultProvider
	}
	if modelID == "" {
		first, ok := firstLLM(available)
		if !ok {
			return "", "", gatewayerr.New(gatewayerr.KindNoLLMAvailable, "no LLM models available upstream")
		}
		modelID, providerID = first.Identifier, first.ProviderID
	}

	for _, m := range available {
		if m.Identifier == modelID && m.ProviderID == providerID {
			return modelID, providerID, nil
		}
	}
	return "", "", gatewayerr.New(gatewayerr.KindModelUnavailable, fmt.Sprintf("model %s/%s is not available upstream", providerID, modelID))
}

func firstLLM(available []upstream.Model) (upstream.Model, bool) {
	for _, m := range available {
		if m.IsLLM() {
			return m, true
		}
	}
	return upstream.Model{}, false
}

// callFailed, shieldViolation, callStarted, and tokensUsed guard every
// Metrics call site: h.Metrics is optional (nil when no registerer was
// configured), and *metrics.Metrics methods dereference struct fields.
func (h *Handler) callFailed() {
	if h.Metrics != nil {
		h.Metrics.CallFailed()
	}
}

func (h *Handler) shieldViolation() {
	if h.Metrics != nil {
		h.Metrics.ShieldViolation()
	}
}

func (h *Handler) callStarted(provider, model string) {
	if h.Metrics != nil {
		h.Metrics.CallStarted(provider, model)
	}
}

func (h *Handler) tokensUsed(provider, model string, sent, received int) {
	if h.Metrics != nil {
		h.Metrics.TokensUsed(provider, model, sent, received)
	}
}
