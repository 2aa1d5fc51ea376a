package streaming

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
	"github.com/lightspeed-stack/query-gateway/pkg/query"
	"github.com/lightspeed-stack/query-gateway/pkg/quota"
	"github.com/lightspeed-stack/query-gateway/pkg/shields"
	"github.com/lightspeed-stack/query-gateway/pkg/suid"
	"github.com/lightspeed-stack/query-gateway/pkg/toolcomposer"
	"github.com/lightspeed-stack/query-gateway/pkg/transcripts"
	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

// Handler orchestrates one streamed turn (spec §4.J, Component J): the
// same setup as the unary handler (spec §4.I steps 1-7, reused directly
// from pkg/query rather than duplicated), followed by an SSE state
// machine over the upstream's chunk stream. Safe for concurrent use on
// the same terms as query.Handler.
type Handler struct {
	Client      upstream.Client
	Cache       cache.Cache
	Limiters    []quota.Limiter
	Transcripts *transcripts.Writer
	Metrics     *metrics.Metrics
	Config      query.Config
}

// turn bundles everything Setup resolves that Stream needs to issue and
// persist the turn.
type turn struct {
	req                 Request
	q                   models.QueryRequest
	startedAt           time.Time
	isNewConversation   bool
	modelID, providerID string
	systemPrompt        string
	agent               *agentregistry.Result
	toolgroups          toolcomposer.Result
	documents           []upstream.Document
	topicSummary        string
}

// Request is an alias of query.Request: the streaming and unary handlers
// accept the identical per-call context from the HTTP layer (spec §4.J:
// "same setup as §4.I").
type Request = query.Request

// Setup runs spec §4.J's steps 1-7: the same validation, ownership,
// quota, model/provider, shield, and attachment resolution as the unary
// handler. Returns a gatewayerr on any failure, meant to be reported as
// an ordinary JSON error response before any SSE bytes are written.
func (h *Handler) Setup(ctx context.Context, req Request) (*turn, error) {
	if h.Client == nil || h.Cache == nil {
		return nil, gatewayerr.New(gatewayerr.KindConfigurationMissing, "gateway is not configured")
	}

	q := req.Query
	if !req.AllowModelOverride && q.HasModelOverride() {
		return nil, gatewayerr.New(gatewayerr.KindForbidden, "model/provider override requires elevated access")
	}
	if err := q.Validate(); err != nil {
		return nil, query.MapValidationErr(err)
	}

	startedAt := time.Now().UTC()
	isNewConversation := q.ConversationID == ""

	var existing *models.UserConversation
	if !isNewConversation {
		uc, err := query.LoadOwnedConversation(ctx, h.Cache, q.ConversationID, req.UserID, req.SkipUserIDCheck, req.AllowOthersConversations)
		if err != nil {
			return nil, err
		}
		existing = uc
	}

	if err := quota.EnsureAvailableAll(ctx, h.Limiters, req.UserID); err != nil {
		return nil, query.MapQuotaErr(err)
	}

	availableModels, err := h.Client.ListModels(ctx)
	if err != nil {
		h.callFailed()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream models", err.Error())
	}
	modelID, providerID, err := query.ResolveModelProvider(q, existing, h.Config, availableModels)
	if err != nil {
		return nil, err
	}

	shieldList, err := h.Client.ListShields(ctx)
	if err != nil {
		h.callFailed()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamUnavailable, "failed to list upstream shields", err.Error())
	}
	inputShields, outputShields := shields.Classify(query.ShieldIdentifiers(shieldList))

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

	documents := query.AttachmentsToDocuments(q.Attachments)

	topicSummary := ""
	if isNewConversation {
		topicSummary = h.generateTopicSummary(ctx, modelID, systemPrompt, q.Query)
	}

	return &turn{
		req:               req,
		q:                 q,
		startedAt:         startedAt,
		isNewConversation: isNewConversation,
		modelID:           modelID,
		providerID:        providerID,
		systemPrompt:      systemPrompt,
		agent:             agentResult,
		toolgroups:        tc,
		documents:         documents,
		topicSummary:      topicSummary,
	}, nil
}

// Stream issues the turn in streaming mode and drives the SSE state
// machine described by spec §4.J's dispatch table, writing every frame
// to w. Once the turn has been issued, Stream never returns a Go error
// to the caller: upstream failures are reported as an `error` frame and
// the stream still ends with an unconditional `end` frame, per spec
// ("exactly one end event... even on ungraceful upstream termination").
func (h *Handler) Stream(ctx context.Context, t *turn, w *Writer) {
	if err := w.Write(KindStart, startPayload{ConversationID: t.agent.ConversationID}, ""); err != nil {
		slog.Warn("streaming: failed to write start frame", "error", err)
		return
	}

	chunks, err := h.Client.CreateTurnStreaming(ctx, upstream.CreateTurnParams{
		AgentID:      t.agent.AgentID,
		SessionID:    t.agent.SessionID,
		Messages:     []upstream.Message{{Role: "user", Content: t.q.Query}},
		Documents:    t.documents,
		Toolgroups:   t.toolgroups.Toolgroups,
		ExtraHeaders: t.toolgroups.ExtraHeaders,
	})
	if err != nil {
		var rateLimited *upstream.RateLimitedError
		msg := "turn failed"
		if errors.As(err, &rateLimited) {
			msg = "rate limited by upstream model"
		} else {
			h.callFailed()
		}
		h.writeErr(w, fmt.Errorf("%s: %w", msg, err))
		h.writeEnd(w, nil, nil)
		return
	}

	acc := newAccumulator()
loop:
	for {
		// Check cancellation first so an already-canceled context always
		// wins over a chunk that happens to be buffered and ready too.
		select {
		case <-ctx.Done():
			// Client disconnected or request was canceled: stop reading
			// within one pending chunk, persist nothing (spec §4.J: "no
			// partial transcript on abort").
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			h.dispatch(w, acc, chunk)
		}
	}

	h.persist(ctx, t, acc)
	h.writeEnd(w, acc.referencedDocuments, h.availableQuotas(ctx, t.req.UserID))
}

// dispatch translates one upstream chunk into zero or more SSE frames
// per spec §4.J's table, and folds the chunk into acc.
func (h *Handler) dispatch(w *Writer, acc *accumulator, chunk upstream.StreamChunk) {
	switch chunk.Kind {
	case upstream.ChunkKindTurnStart, upstream.ChunkKindTurnAwaitingInput:
		h.writeFrame(w, KindToken, "", "")

	case upstream.ChunkKindTurnComplete:
		content := ""
		if chunk.TurnComplete != nil {
			content = chunk.TurnComplete.Content
			acc.llmResponse = content
		}
		h.writeFrame(w, KindTurnComplete, content, "")

	case upstream.ChunkKindStepStart:
		switch chunk.StepType {
		case upstream.StepTypeToolExecution:
			h.writeFrame(w, KindToolCall, "", string(chunk.StepType))
		default:
			h.writeFrame(w, KindToken, "", string(chunk.StepType))
		}

	case upstream.ChunkKindStepProgress:
		h.dispatchProgress(w, chunk)

	case upstream.ChunkKindStepComplete:
		h.dispatchComplete(w, acc, chunk)

	case upstream.ChunkKindError:
		msg := "upstream stream error"
		if chunk.Err != nil {
			msg = chunk.Err.Error()
		}
		h.writeFrame(w, KindError, msg, "")

	default:
		h.writeFrame(w, KindHeartbeat, nil, "")
	}
}

func (h *Handler) dispatchProgress(w *Writer, chunk upstream.StreamChunk) {
	switch chunk.StepType {
	case upstream.StepTypeInference:
		switch {
		case chunk.ToolCallDelta != nil && chunk.ToolCallDelta.Raw != "":
			h.writeFrame(w, KindToolCall, chunk.ToolCallDelta.Raw, string(chunk.StepType))
		case chunk.ToolCallDelta != nil:
			h.writeFrame(w, KindToolCall, chunk.ToolCallDelta.Name, string(chunk.StepType))
		default:
			h.writeFrame(w, KindToken, chunk.TextDelta, string(chunk.StepType))
		}
	default:
		h.writeFrame(w, KindHeartbeat, nil, "")
	}
}

func (h *Handler) dispatchComplete(w *Writer, acc *accumulator, chunk upstream.StreamChunk) {
	switch chunk.StepType {
	case upstream.StepTypeShieldCall:
		if chunk.ShieldViolation == nil {
			h.writeFrame(w, KindToken, "No Violation", string(chunk.StepType))
			return
		}
		h.shieldViolation()
		h.writeFrame(w, KindToken, fmt.Sprintf("%s: %s", chunk.ShieldViolation.ViolationType, chunk.ShieldViolation.Message), string(chunk.StepType))

	case upstream.StepTypeToolExecution:
		for _, call := range chunk.ToolCalls {
			acc.toolCalls = append(acc.toolCalls, models.ToolCallSummary{ID: call.CallID, Name: call.ToolName, Args: call.Arguments})
			h.writeFrame(w, KindToolCall, toolCallArgs{ToolName: call.ToolName, Arguments: call.Arguments}, string(chunk.StepType))
		}

		newDocs := docs.FromToolResponses(chunk.ToolResponses)
		acc.referencedDocuments = append(acc.referencedDocuments, newDocs...)

		for _, resp := range chunk.ToolResponses {
			acc.toolResponses = append(acc.toolResponses, resp)
			if resp.ToolName == upstream.KnowledgeSearchToolName && len(newDocs) > 0 {
				h.writeFrame(w, KindToolCall, toolCallResponse{
					ToolName: resp.ToolName,
					Response: fmt.Sprintf("%d relevant document(s) found", len(newDocs)),
				}, string(chunk.StepType))
				continue
			}
			h.writeFrame(w, KindToolCall, toolCallResponse{ToolName: resp.ToolName, Response: joinContent(resp.Content)}, string(chunk.StepType))
		}

	default:
		h.writeFrame(w, KindHeartbeat, nil, "")
	}
}

func (h *Handler) writeFrame(w *Writer, kind Kind, token any, role string) {
	if err := w.Write(kind, token, role); err != nil {
		slog.Warn("streaming: failed to write frame", "kind", kind, "error", err)
	}
}

func (h *Handler) writeErr(w *Writer, err error) {
	h.writeFrame(w, KindError, err.Error(), "")
}

func (h *Handler) writeEnd(w *Writer, referenced []models.ReferencedDocument, quotas map[string]int) {
	dtos := make([]referencedDocumentDTO, len(referenced))
	for i, d := range referenced {
		dtos[i] = referencedDocumentDTO{DocURL: d.DocURL, DocTitle: d.DocTitle}
	}
	h.writeFrame(w, KindEnd, endPayload{
		ReferencedDocuments: dtos,
		AvailableQuotas:     quotas,
	}, "")
}

// persist implements spec §4.J's tail (mirroring §4.I steps 9-15):
// transcript write, cache insert, topic summary, and quota consumption,
// run only once the stream has drained to its natural end.
func (h *Handler) persist(ctx context.Context, t *turn, acc *accumulator) {
	completedAt := time.Now().UTC()
	turnID := suid.New()
	conversationID := t.agent.ConversationID

	if h.Transcripts.Enabled() {
		record := transcripts.Record{
			UserID:         t.req.UserID,
			ConversationID: conversationID,
			Query:          t.q.Query,
			Validated:      true,
			Response:       acc.llmResponse,
			ReferencedDocs: acc.referencedDocuments,
			Attachments:    t.q.Attachments,
			ToolCalls:      acc.toolCalls,
			StartedAt:      t.startedAt,
			CompletedAt:    completedAt,
		}
		if err := h.Transcripts.Write(t.req.UserID, conversationID, turnID, record); err != nil {
			slog.Error("streaming: failed to write transcript", "conversation_id", conversationID, "error", err)
		}
	}

	entry := cache.Entry{
		Query:               t.q.Query,
		Response:            acc.llmResponse,
		Provider:            t.providerID,
		Model:               t.modelID,
		StartedAt:           t.startedAt,
		CompletedAt:         completedAt,
		ReferencedDocuments: acc.referencedDocuments,
	}
	if err := h.Cache.Insert(ctx, t.req.UserID, conversationID, entry, t.req.SkipUserIDCheck); err != nil {
		slog.Error("streaming: failed to persist conversation turn", "conversation_id", conversationID, "error", err)
	}
	if t.isNewConversation {
		if err := h.Cache.SetTopicSummary(ctx, t.req.UserID, conversationID, t.topicSummary, t.req.SkipUserIDCheck); err != nil {
			slog.Warn("streaming: failed to set initial topic summary", "conversation_id", conversationID, "error", err)
		}
	}

	// Streaming turns do not carry a final upstream.Usage the way a
	// non-streaming TurnResult does; token accounting for a streamed
	// turn is approximate and recorded as zero consumption, matching the
	// wire format's own "placeholder quota/token fields" note.
	for _, err := range quota.ConsumeAll(ctx, h.Limiters, t.req.UserID, 0, 0) {
		slog.Error("streaming: quota consumption failed", "user_id", t.req.UserID, "error", err)
	}

	h.callStarted(t.providerID, t.modelID)
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

// accumulator folds the incrementally-streamed chunks into the same
// shape the unary handler produces in one shot, for persistence at the
// end of the stream.
type accumulator struct {
	llmResponse         string
	toolCalls           []models.ToolCallSummary
	toolResponses       []upstream.ToolResponseInfo
	referencedDocuments []models.ReferencedDocument
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

func (h *Handler) generateTopicSummary(ctx context.Context, modelID, systemPrompt, userQuery string) string {
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
		slog.Warn("streaming: failed to create scratch agent for topic summary", "error", err)
		return ""
	}
	defer func() {
		if err := h.Client.Agents().Delete(ctx, scratch.AgentID); err != nil {
			slog.Warn("streaming: failed to delete scratch topic-summary agent", "agent_id", scratch.AgentID, "error", err)
		}
	}()

	turn, err := h.Client.CreateTurn(ctx, upstream.CreateTurnParams{
		AgentID:   scratch.AgentID,
		SessionID: scratch.SessionID,
		Messages:  []upstream.Message{{Role: "user", Content: userQuery}},
	})
	if err != nil {
		slog.Warn("streaming: topic summary turn failed", "error", err)
		return ""
	}
	_ = systemPrompt
	return turn.OutputMessage.Content
}

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
			slog.Warn("streaming: failed to read available quota", "limiter", l.Name(), "error", err)
			continue
		}
		out[l.Name()] = n
	}
	return out
}

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
