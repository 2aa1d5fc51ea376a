package upstream

import "context"

// Client is the gateway's view of the upstream agent/inference service
// (spec §6, "external collaborators"). The gateway composes and forwards
// this protocol; it never implements it.
type Client interface {
	ListModels(ctx context.Context) ([]Model, error)
	ListShields(ctx context.Context) ([]Shield, error)
	ListVectorDBs(ctx context.Context) ([]VectorDB, error)
	ListProviders(ctx context.Context) ([]Provider, error)

	Agents() AgentAPI
	Sessions() SessionAPI

	// CreateTurn runs one non-streaming turn.
	CreateTurn(ctx context.Context, params CreateTurnParams) (*TurnResult, error)
	// CreateTurnStreaming runs one turn, delivering chunks as the upstream
	// emits them. The channel is closed when the stream ends (normally or
	// via ctx cancellation); no further sends occur after ctx.Done().
	CreateTurnStreaming(ctx context.Context, params CreateTurnParams) (<-chan StreamChunk, error)

	InspectVersion(ctx context.Context) (*VersionInfo, error)
}

// AgentAPI is the subset of the upstream agents resource the gateway uses.
type AgentAPI interface {
	Retrieve(ctx context.Context, agentID string) (*Agent, error)
	Create(ctx context.Context, params AgentCreateParams) (*Agent, error)
	Delete(ctx context.Context, agentID string) error
}

// SessionAPI is the subset of the upstream agent-session resource the
// gateway uses.
type SessionAPI interface {
	Create(ctx context.Context, agentID, sessionName string) (*Session, error)
	List(ctx context.Context, agentID string) ([]Session, error)
	Retrieve(ctx context.Context, agentID, sessionID string) (*Session, error)
	Delete(ctx context.Context, agentID, sessionID string) error
}

// ErrNotFound is returned by Retrieve methods when the upstream reports
// the resource does not exist. Callers (e.g. pkg/agentregistry) treat
// this as non-fatal, per spec §4.F step 1.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "upstream: not found" }
