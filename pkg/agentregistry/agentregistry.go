// Package agentregistry implements the gateway's create-or-reuse agent
// lifecycle (spec §4.F, Component F). The upstream forces id assignment
// at agent-creation time, so reusing a conversation means creating a
// fresh agent, renaming it onto the requested conversation_id, and
// deleting the orphan it replaces.
package agentregistry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lightspeed-stack/query-gateway/pkg/suid"
	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

// graniteToolParser is used for any model family whose identifier starts
// with "granite" (case-insensitive); every other model uses the default
// parser, matching the teacher's own model-family dispatch style
// (pkg/agent/config_resolver.go's backend-resolution hierarchy).
const graniteToolParser = "granite"

// Params bundles the arguments to GetOrCreateAgent (spec §4.F's contract).
type Params struct {
	Model           string
	SystemPrompt    string
	InputShields    []string
	OutputShields   []string
	ConversationID  string // empty for a brand-new conversation
	NoTools         bool
}

// Result is the outcome of GetOrCreateAgent.
type Result struct {
	AgentID        string
	ConversationID string
	SessionID      string
}

// GetOrCreateAgent implements the algorithm of spec §4.F.
func GetOrCreateAgent(ctx context.Context, client upstream.Client, p Params) (*Result, error) {
	existed := false
	if p.ConversationID != "" {
		_, err := client.Agents().Retrieve(ctx, p.ConversationID)
		switch {
		case err == nil:
			existed = true
		case errors.Is(err, upstream.ErrNotFound):
			// Not fatal — the conversation may be new to the upstream even
			// though the caller supplied an id (e.g. a side-table row with
			// no matching agent, which the caller has already ruled out by
			// the time it gets here).
		default:
			return nil, fmt.Errorf("agentregistry: retrieve %s: %w", p.ConversationID, err)
		}
	}

	toolParser := defaultToolParserFor(p.Model)
	if p.NoTools {
		toolParser = ""
	}

	created, err := client.Agents().Create(ctx, upstream.AgentCreateParams{
		Model:         p.Model,
		Instructions:  p.SystemPrompt,
		InputShields:  p.InputShields,
		OutputShields: p.OutputShields,
		ToolParser:    toolParser,
		NoTools:       p.NoTools,
	})
	if err != nil {
		return nil, fmt.Errorf("agentregistry: create agent: %w", err)
	}

	if existed {
		return reuse(ctx, client, created.AgentID, p.ConversationID)
	}
	return fresh(ctx, client, created.AgentID)
}

// reuse performs the create-then-swap dance: the freshly created agent is
// an orphan that only exists to carry the new turn's config. It must be
// deleted by its original id even if listing sessions on the requested
// conversation later fails — otherwise a retry leaks agents (spec §9).
func reuse(ctx context.Context, client upstream.Client, newAgentID, conversationID string) (*Result, error) {
	defer func() {
		if err := client.Agents().Delete(ctx, newAgentID); err != nil {
			slog.Error("agentregistry: failed to delete orphan agent", "agent_id", newAgentID, "error", err)
		}
	}()

	sessions, err := client.Sessions().List(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("agentregistry: list sessions for %s: %w", conversationID, err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("agentregistry: conversation %s has no sessions: %w", conversationID, upstream.ErrNotFound)
	}

	return &Result{
		AgentID:        conversationID,
		ConversationID: conversationID,
		SessionID:      sessions[0].SessionID,
	}, nil
}

// fresh binds a brand-new agent's id as the conversation_id (the cyclic
// identity invariant from spec §3/§9) and opens its first session.
func fresh(ctx context.Context, client upstream.Client, newAgentID string) (*Result, error) {
	session, err := client.Sessions().Create(ctx, newAgentID, suid.New())
	if err != nil {
		return nil, fmt.Errorf("agentregistry: create session for %s: %w", newAgentID, err)
	}

	return &Result{
		AgentID:        newAgentID,
		ConversationID: newAgentID,
		SessionID:      session.SessionID,
	}, nil
}

func defaultToolParserFor(model string) string {
	if strings.HasPrefix(strings.ToLower(model), graniteToolParser) {
		return graniteToolParser
	}
	return ""
}
