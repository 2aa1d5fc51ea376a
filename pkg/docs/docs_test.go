package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

func toolResponse(contents ...string) upstream.ToolResponseInfo {
	return upstream.ToolResponseInfo{ToolName: upstream.KnowledgeSearchToolName, Content: contents}
}

func TestFromToolResponsesExtractsValidDocument(t *testing.T) {
	content := "Result 1\nMetadata: {'docs_url': 'https://docs.example.com/a', 'title': 'Doc A'}\nmore text"
	docs := FromToolResponses([]upstream.ToolResponseInfo{toolResponse(content)})

	require.Len(t, docs, 1)
	assert.Equal(t, "https://docs.example.com/a", docs[0].DocURL)
	assert.Equal(t, "Doc A", docs[0].DocTitle)
}

func TestFromToolResponsesDropsBlockMissingRequiredKey(t *testing.T) {
	content := "Metadata: {'docs_url': 'https://docs.example.com/a'}"
	docs := FromToolResponses([]upstream.ToolResponseInfo{toolResponse(content)})
	assert.Empty(t, docs)
}

func TestFromToolResponsesDedupsRepeatedURL(t *testing.T) {
	content := "Metadata: {'docs_url': 'https://docs.example.com/a', 'title': 'Doc A'}\n" +
		"Metadata: {'docs_url': 'https://docs.example.com/a', 'title': 'Doc A again'}"
	docs := FromToolResponses([]upstream.ToolResponseInfo{toolResponse(content)})

	require.Len(t, docs, 1)
	assert.Equal(t, "Doc A", docs[0].DocTitle)
}

func TestFromToolResponsesSkipsMalformedBlockWithoutError(t *testing.T) {
	content := "Metadata: {'docs_url': 'https://docs.example.com/a', 'title': }"
	docs := FromToolResponses([]upstream.ToolResponseInfo{toolResponse(content)})
	assert.Empty(t, docs)
}

func TestFromToolResponsesIgnoresNonKnowledgeSearchTool(t *testing.T) {
	r := upstream.ToolResponseInfo{
		ToolName: "other_tool",
		Content:  []string{"Metadata: {'docs_url': 'https://docs.example.com/a', 'title': 'Doc A'}"},
	}
	docs := FromToolResponses([]upstream.ToolResponseInfo{r})
	assert.Empty(t, docs)
}

func TestFromToolResponsesHandlesMultipleBlocksAcrossContentItems(t *testing.T) {
	r := toolResponse(
		"Metadata: {'docs_url': 'https://docs.example.com/a', 'title': 'Doc A'}",
		"Metadata: {'docs_url': 'https://docs.example.com/b', 'title': 'Doc B'}",
	)
	docs := FromToolResponses([]upstream.ToolResponseInfo{r})

	require.Len(t, docs, 2)
	assert.Equal(t, "https://docs.example.com/a", docs[0].DocURL)
	assert.Equal(t, "https://docs.example.com/b", docs[1].DocURL)
}

func TestParseLiteralNestedStructures(t *testing.T) {
	value, err := parseLiteral(`{'a': [1, 2, {'b': True, 'c': None}], 'd': 'x'}`)
	require.NoError(t, err)

	m, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", m["d"])

	list, ok := m["a"].([]any)
	require.True(t, ok)
	require.Len(t, list, 3)

	nested, ok := list[2].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, nested["b"])
	assert.Nil(t, nested["c"])
}

func TestParseLiteralBraceInsideQuotedString(t *testing.T) {
	block := `{'title': 'contains } a brace', 'docs_url': 'https://docs.example.com/a'}`
	blocks := extractMetadataBlocks("Metadata: " + block)
	require.Len(t, blocks, 1)

	doc, ok := parseReferencedDocument(blocks[0])
	require.True(t, ok)
	assert.Equal(t, "contains } a brace", doc.DocTitle)
}
