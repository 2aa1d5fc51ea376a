package agentregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

type fakeClient struct {
	upstream.Client
	agents   *fakeAgentAPI
	sessions *fakeSessionAPI
}

func (f *fakeClient) Agents() upstream.AgentAPI     { return f.agents }
func (f *fakeClient) Sessions() upstream.SessionAPI { return f.sessions }

type fakeAgentAPI struct {
	existing     map[string]bool
	created      []string
	deleted      []string
	createCount  int
	nextIDPrefix string
}

func (a *fakeAgentAPI) Retrieve(_ context.Context, agentID string) (*upstream.Agent, error) {
	if a.existing[agentID] {
		return &upstream.Agent{AgentID: agentID}, nil
	}
	return nil, upstream.ErrNotFound
}

func (a *fakeAgentAPI) Create(_ context.Context, _ upstream.AgentCreateParams) (*upstream.Agent, error) {
	a.createCount++
	id := a.nextIDPrefix
	if id == "" {
		id = "new-agent"
	}
	a.created = append(a.created, id)
	return &upstream.Agent{AgentID: id}, nil
}

func (a *fakeAgentAPI) Delete(_ context.Context, agentID string) error {
	a.deleted = append(a.deleted, agentID)
	return nil
}

type fakeSessionAPI struct {
	sessionsByAgent map[string][]upstream.Session
}

func (s *fakeSessionAPI) Create(_ context.Context, agentID, _ string) (*upstream.Session, error) {
	return &upstream.Session{SessionID: "session-for-" + agentID}, nil
}

func (s *fakeSessionAPI) List(_ context.Context, agentID string) ([]upstream.Session, error) {
	return s.sessionsByAgent[agentID], nil
}

func (s *fakeSessionAPI) Retrieve(context.Context, string, string) (*upstream.Session, error) {
	return nil, nil
}

func (s *fakeSessionAPI) Delete(context.Context, string, string) error { return nil }

func TestGetOrCreateAgentFreshConversation(t *testing.T) {
	client := &fakeClient{
		agents:   &fakeAgentAPI{existing: map[string]bool{}, nextIDPrefix: "brand-new"},
		sessions: &fakeSessionAPI{sessionsByAgent: map[string][]upstream.Session{}},
	}

	result, err := GetOrCreateAgent(context.Background(), client, Params{Model: "llama-3"})
	require.NoError(t, err)
	assert.Equal(t, "brand-new", result.AgentID)
	assert.Equal(t, "brand-new", result.ConversationID)
	assert.Equal(t, "session-for-brand-new", result.SessionID)
	assert.Empty(t, client.agents.deleted)
}

func TestGetOrCreateAgentReusesExistingConversation(t *testing.T) {
	client := &fakeClient{
		agents: &fakeAgentAPI{
			existing:     map[string]bool{"conv-1": true},
			nextIDPrefix: "orphan-agent",
		},
		sessions: &fakeSessionAPI{
			sessionsByAgent: map[string][]upstream.Session{
				"conv-1": {{SessionID: "existing-session"}},
			},
		},
	}

	result, err := GetOrCreateAgent(context.Background(), client, Params{Model: "llama-3", ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", result.AgentID)
	assert.Equal(t, "existing-session", result.SessionID)
	require.Len(t, client.agents.deleted, 1)
	assert.Equal(t, "orphan-agent", client.agents.deleted[0])
}

func TestGetOrCreateAgentReuseWithNoSessionsFails(t *testing.T) {
	client := &fakeClient{
		agents: &fakeAgentAPI{
			existing:     map[string]bool{"conv-1": true},
			nextIDPrefix: "orphan-agent",
		},
		sessions: &fakeSessionAPI{sessionsByAgent: map[string][]upstream.Session{}},
	}

	_, err := GetOrCreateAgent(context.Background(), client, Params{Model: "llama-3", ConversationID: "conv-1"})
	require.Error(t, err)
	// the orphan must still be deleted even though session listing failed the turn
	require.Len(t, client.agents.deleted, 1)
}

func TestGetOrCreateAgentConversationNotFoundUpstreamIsNotFatal(t *testing.T) {
	client := &fakeClient{
		agents: &fakeAgentAPI{
			existing:     map[string]bool{},
			nextIDPrefix: "brand-new",
		},
		sessions: &fakeSessionAPI{sessionsByAgent: map[string][]upstream.Session{}},
	}

	result, err := GetOrCreateAgent(context.Background(), client, Params{Model: "llama-3", ConversationID: "conv-missing"})
	require.NoError(t, err)
	assert.Equal(t, "brand-new", result.AgentID)
}

func TestGetOrCreateAgentGraniteModelUsesGraniteParser(t *testing.T) {
	assert.Equal(t, "granite", defaultToolParserFor("Granite-3.1-8b"))
	assert.Equal(t, "", defaultToolParserFor("llama-3.1-70b"))
}
