package toolcomposer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

var servers = []MCPServer{
	{Name: "jira", URL: "https://mcp.example.com/jira"},
	{Name: "github", URL: "https://mcp.example.com/github"},
}

func TestComposeNoToolsDisablesEverything(t *testing.T) {
	result := Compose(Request{NoTools: true})
	assert.Nil(t, result.Toolgroups)
	assert.Empty(t, result.ExtraHeaders)
}

func TestComposeNilToolgroupsWhenNothingConfigured(t *testing.T) {
	result := Compose(Request{})
	assert.Nil(t, result.Toolgroups)
}

func TestComposeRAGOmittedWhenNoVectorDBs(t *testing.T) {
	result := Compose(Request{MCPServers: servers})
	require.Len(t, result.Toolgroups, 2)
	for _, tg := range result.Toolgroups {
		assert.NotEqual(t, upstream.RAGToolgroupName, tg.Name)
	}
}

func TestComposeIncludesRAGWhenVectorDBsPresent(t *testing.T) {
	result := Compose(Request{VectorDBIDs: []string{"db1"}, MCPServers: servers})
	require.Len(t, result.Toolgroups, 3)
	assert.Equal(t, upstream.RAGToolgroupName, result.Toolgroups[0].Name)
	assert.Equal(t, []string{"db1"}, result.Toolgroups[0].Args["vector_db_ids"])
}

func TestComposeMCPHeadersResolvesToolgroupNameToURL(t *testing.T) {
	headers := `{"jira": {"X-Api-Key": "secret"}, "unknown-tool": {"X-Foo": "bar"}}`
	result := Compose(Request{MCPServers: servers, MCPHeaders: headers})

	var providerData map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.ExtraHeaders[HeaderKey]), &providerData))
	mcpHeaders := providerData["mcp_headers"]

	require.Contains(t, mcpHeaders, "https://mcp.example.com/jira")
	assert.Equal(t, "secret", mcpHeaders["https://mcp.example.com/jira"]["X-Api-Key"])
	assert.NotContains(t, mcpHeaders, "unknown-tool")
}

func TestComposeMCPHeadersAcceptsFullURLKeys(t *testing.T) {
	headers := `{"https://mcp.example.com/github": {"Authorization": "Bearer xyz"}}`
	result := Compose(Request{MCPServers: servers, MCPHeaders: headers})

	var providerData map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.ExtraHeaders[HeaderKey]), &providerData))
	assert.Equal(t, "Bearer xyz", providerData["mcp_headers"]["https://mcp.example.com/github"]["Authorization"])
}

func TestComposeMalformedMCPHeadersFallsBackToBearerInjection(t *testing.T) {
	result := Compose(Request{MCPServers: servers, MCPHeaders: "not json", BearerToken: "tok"})

	var providerData map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.ExtraHeaders[HeaderKey]), &providerData))
	// malformed headers fall through to the bearer-token injection path
	require.Len(t, providerData["mcp_headers"], 2)
}

func TestComposeInjectsBearerWhenNoHeadersProvided(t *testing.T) {
	result := Compose(Request{MCPServers: servers, BearerToken: "tok123"})

	var providerData map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.ExtraHeaders[HeaderKey]), &providerData))
	mcpHeaders := providerData["mcp_headers"]
	require.Len(t, mcpHeaders, 2)
	assert.Equal(t, "Bearer tok123", mcpHeaders["https://mcp.example.com/jira"]["Authorization"])
	assert.Equal(t, "Bearer tok123", mcpHeaders["https://mcp.example.com/github"]["Authorization"])
}
