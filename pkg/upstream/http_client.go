package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lightspeed-stack/query-gateway/pkg/version"
)

// HTTPClient is a plain net/http + encoding/json implementation of Client
// against the upstream's REST surface (spec §6 lists operation names, not
// a transport — this is the literal protocol boundary, grounded the same
// way TicoDavid-RAGbox.co's BYOLLMClient talks to an OpenAI-compatible
// REST API: build the request, check the status, decode JSON or scan SSE
// lines).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	agents     *httpAgentAPI
	sessions   *httpSessionAPI
}

// NewHTTPClient constructs an HTTPClient against baseURL (e.g.
// "http://llama-stack:8321"), using timeout for non-streaming calls.
// Streaming calls use an unbounded client timeout; ctx cancellation is
// what bounds them (spec §5: "no per-endpoint timeout specified by the
// core" beyond the configured client timeout).
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	c.agents = &httpAgentAPI{c: c}
	c.sessions = &httpSessionAPI{c: c}
	return c
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	return c.doWithHeaders(ctx, method, path, body, out, nil)
}

func (c *HTTPClient) doWithHeaders(ctx context.Context, method, path string, body any, out any, extraHeaders map[string]string) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.Full())
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{}
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upstream: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode response: %w", err)
	}
	return nil
}

// RateLimitedError is returned by upstream calls that hit the provider's
// own rate limit, mapped to gatewayerr.KindUpstreamRateLimited.
type RateLimitedError struct{ Model string }

func (e *RateLimitedError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("upstream: rate limited (model=%s)", e.Model)
	}
	return "upstream: rate limited"
}

// ListModels implements Client.
func (c *HTTPClient) ListModels(ctx context.Context) ([]Model, error) {
	var out struct {
		Data []Model `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListShields implements Client.
func (c *HTTPClient) ListShields(ctx context.Context) ([]Shield, error) {
	var out struct {
		Data []Shield `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/shields", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListVectorDBs implements Client.
func (c *HTTPClient) ListVectorDBs(ctx context.Context) ([]VectorDB, error) {
	var out struct {
		Data []VectorDB `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/vector-dbs", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListProviders implements Client.
func (c *HTTPClient) ListProviders(ctx context.Context) ([]Provider, error) {
	var out struct {
		Data []Provider `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/providers", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Agents implements Client.
func (c *HTTPClient) Agents() AgentAPI { return c.agents }

// Sessions implements Client.
func (c *HTTPClient) Sessions() SessionAPI { return c.sessions }

// InspectVersion implements Client.
func (c *HTTPClient) InspectVersion(ctx context.Context) (*VersionInfo, error) {
	var out VersionInfo
	if err := c.do(ctx, http.MethodGet, "/v1/version", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type httpAgentAPI struct{ c *HTTPClient }

func (a *httpAgentAPI) Retrieve(ctx context.Context, agentID string) (*Agent, error) {
	var out Agent
	if err := a.c.do(ctx, http.MethodGet, "/v1/agents/"+agentID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type createAgentRequest struct {
	AgentConfig agentConfigBody `json:"agent_config"`
}

type agentConfigBody struct {
	Model                string            `json:"model"`
	Instructions         string            `json:"instructions"`
	InputShields         []string          `json:"input_shields"`
	OutputShields        []string          `json:"output_shields"`
	ToolParser           string            `json:"client_tools_parser,omitempty"`
	EnableSessionPersist bool              `json:"enable_session_persistence"`
	ExtraHeaders         map[string]string `json:"-"`
}

func (a *httpAgentAPI) Create(ctx context.Context, params AgentCreateParams) (*Agent, error) {
	body := createAgentRequest{AgentConfig: agentConfigBody{
		Model:                params.Model,
		Instructions:         params.Instructions,
		InputShields:         params.InputShields,
		OutputShields:        params.OutputShields,
		ToolParser:           params.ToolParser,
		EnableSessionPersist: true,
	}}
	var out Agent
	if err := a.c.do(ctx, http.MethodPost, "/v1/agents", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *httpAgentAPI) Delete(ctx context.Context, agentID string) error {
	return a.c.do(ctx, http.MethodDelete, "/v1/agents/"+agentID, nil, nil)
}

type httpSessionAPI struct{ c *HTTPClient }

func (s *httpSessionAPI) Create(ctx context.Context, agentID, sessionName string) (*Session, error) {
	body := struct {
		SessionName string `json:"session_name"`
	}{SessionName: sessionName}
	var out Session
	path := fmt.Sprintf("/v1/agents/%s/session", agentID)
	if err := s.c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *httpSessionAPI) List(ctx context.Context, agentID string) ([]Session, error) {
	var out struct {
		Data []Session `json:"data"`
	}
	path := fmt.Sprintf("/v1/agents/%s/sessions", agentID)
	if err := s.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (s *httpSessionAPI) Retrieve(ctx context.Context, agentID, sessionID string) (*Session, error) {
	var out Session
	path := fmt.Sprintf("/v1/agents/%s/session/%s", agentID, sessionID)
	if err := s.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *httpSessionAPI) Delete(ctx context.Context, agentID, sessionID string) error {
	path := fmt.Sprintf("/v1/agents/%s/session/%s", agentID, sessionID)
	return s.c.do(ctx, http.MethodDelete, path, nil, nil)
}

type createTurnRequest struct {
	Messages   []Message   `json:"messages"`
	Documents  []Document  `json:"documents,omitempty"`
	Stream     bool        `json:"stream"`
	Toolgroups []Toolgroup `json:"toolgroups"`
}

// CreateTurn implements Client.
func (c *HTTPClient) CreateTurn(ctx context.Context, params CreateTurnParams) (*TurnResult, error) {
	path := fmt.Sprintf("/v1/agents/%s/session/%s/turn", params.AgentID, params.SessionID)
	body := createTurnRequest{
		Messages:   params.Messages,
		Documents:  params.Documents,
		Stream:     false,
		Toolgroups: params.Toolgroups,
	}
	var out TurnResult
	if err := c.doWithHeaders(ctx, http.MethodPost, path, body, &out, params.ExtraHeaders); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTurnStreaming implements Client. It issues the request with
// stream=true and parses the response body as newline-delimited JSON
// events, translating each line into a StreamChunk.
func (c *HTTPClient) CreateTurnStreaming(ctx context.Context, params CreateTurnParams) (<-chan StreamChunk, error) {
	path := fmt.Sprintf("/v1/agents/%s/session/%s/turn", params.AgentID, params.SessionID)
	body := createTurnRequest{
		Messages:   params.Messages,
		Documents:  params.Documents,
		Stream:     true,
		Toolgroups: params.Toolgroups,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal streaming request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("upstream: build streaming request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	req.Header.Set("User-Agent", version.Full())
	for k, v := range params.ExtraHeaders {
		req.Header.Set(k, v)
	}

	streamHTTP := &http.Client{Timeout: 0}
	resp, err := streamHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: streaming request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upstream: unexpected streaming status %d: %s", resp.StatusCode, string(respBody))
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			line = strings.TrimPrefix(line, "data: ")

			chunk, err := decodeWireChunk([]byte(line))
			if err != nil {
				chunk = StreamChunk{Kind: ChunkKindError, Err: fmt.Errorf("upstream: decode chunk: %w", err)}
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamChunk{Kind: ChunkKindError, Err: fmt.Errorf("upstream: stream read error: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}
