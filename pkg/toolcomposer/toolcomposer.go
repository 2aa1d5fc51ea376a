// Package toolcomposer builds the toolgroups argument and MCP header map
// for one turn (spec §4.G, Component G). The gateway never opens an MCP
// session itself — it only resolves configured server names to URLs and
// forwards opaque headers; the upstream agent opens MCP sessions on the
// gateway's behalf.
package toolcomposer

import (
	"encoding/json"
	"log/slog"

	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

// MCPServer is one configured remote tool server.
type MCPServer struct {
	Name string
	URL  string
}

// HeaderKey is the agent extra-header carrying resolved MCP auth data.
const HeaderKey = "X-LlamaStack-Provider-Data"

// Request is the per-turn input to Compose.
type Request struct {
	NoTools      bool
	VectorDBIDs  []string
	MCPServers   []MCPServer
	MCPHeaders   string // raw value of the incoming MCP-HEADERS request header, "" if absent
	BearerToken  string
}

// Result is what a turn needs: the toolgroups list (nil both when tools
// are disabled and when nothing is configured, never an empty slice) and
// the extra header to attach to the agent/turn.
type Result struct {
	Toolgroups   []upstream.Toolgroup
	ExtraHeaders map[string]string
}

// Compose builds the Result for one turn per spec §4.G.
func Compose(req Request) Result {
	if req.NoTools {
		return Result{Toolgroups: nil, ExtraHeaders: map[string]string{}}
	}

	mcpHeaders := resolveMCPHeaders(req.MCPHeaders, req.MCPServers)
	if len(mcpHeaders) == 0 && req.BearerToken != "" {
		mcpHeaders = injectBearerForAllServers(req.BearerToken, req.MCPServers)
	}

	providerData, err := json.Marshal(map[string]any{"mcp_headers": mcpHeaders})
	if err != nil {
		slog.Error("toolcomposer: failed to marshal provider data", "error", err)
		providerData = []byte(`{"mcp_headers":{}}`)
	}

	toolgroups := composeToolgroups(req.VectorDBIDs, req.MCPServers)

	return Result{
		Toolgroups:   toolgroups,
		ExtraHeaders: map[string]string{HeaderKey: string(providerData)},
	}
}

// resolveMCPHeaders parses the incoming MCP-HEADERS JSON object, mapping
// either full URLs or toolgroup names to header dicts. Toolgroup-name
// keys are translated to the matching configured server's URL; unknown
// names are dropped. A non-object or malformed payload yields an empty
// map (logged), per spec.
func resolveMCPHeaders(raw string, servers []MCPServer) map[string]map[string]string {
	if raw == "" {
		return map[string]map[string]string{}
	}

	var parsed map[string]map[string]string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("toolcomposer: malformed MCP-HEADERS, ignoring", "error", err)
		return map[string]map[string]string{}
	}

	byName := make(map[string]string, len(servers))
	for _, s := range servers {
		byName[s.Name] = s.URL
	}

	resolved := make(map[string]map[string]string, len(parsed))
	for key, headers := range parsed {
		if url, ok := byName[key]; ok {
			resolved[url] = headers
			continue
		}
		if isConfiguredURL(key, servers) {
			resolved[key] = headers
			continue
		}
		slog.Warn("toolcomposer: unknown MCP-HEADERS key dropped", "key", key)
	}
	return resolved
}

func isConfiguredURL(key string, servers []MCPServer) bool {
	for _, s := range servers {
		if s.URL == key {
			return true
		}
	}
	return false
}

func injectBearerForAllServers(token string, servers []MCPServer) map[string]map[string]string {
	out := make(map[string]map[string]string, len(servers))
	for _, s := range servers {
		out[s.URL] = map[string]string{"Authorization": "Bearer " + token}
	}
	return out
}

// composeToolgroups builds the toolgroups list: RAG (if any vector DB ids
// are configured) followed by every configured MCP server's toolgroup
// name. Returns nil (not empty) if the combined list is empty, since the
// upstream distinguishes null from empty.
func composeToolgroups(vectorDBIDs []string, servers []MCPServer) []upstream.Toolgroup {
	var out []upstream.Toolgroup
	if rag := ragToolgroup(vectorDBIDs); rag != nil {
		out = append(out, *rag)
	}
	for _, s := range servers {
		out = append(out, upstream.Toolgroup{Name: s.Name})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ragToolgroup returns the built-in RAG knowledge-search toolgroup
// descriptor, or nil if no vector databases are attached.
func ragToolgroup(vectorDBIDs []string) *upstream.Toolgroup {
	if len(vectorDBIDs) == 0 {
		return nil
	}
	return &upstream.Toolgroup{
		Name: upstream.RAGToolgroupName,
		Args: map[string]any{"vector_db_ids": vectorDBIDs},
	}
}
