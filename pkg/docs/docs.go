// Package docs extracts referenced-document citations from knowledge-search
// tool output (spec §4.M, Component M). The upstream's content items embed
// zero or more "\nMetadata: { ... }\n" blocks whose interior is a
// language-neutral literal mapping (Python-repr-like, not JSON) — this
// package parses that literal with a small recursive-descent parser
// rather than evaluating it.
package docs

import (
	"log/slog"

	"github.com/lightspeed-stack/query-gateway/pkg/models"
	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

const metadataMarker = "Metadata:"

// FromToolResponses scans every content item of every knowledge-search
// tool response for Metadata blocks, keeping those that carry both
// "docs_url" and "title", and deduplicating in encounter order. Parse
// failures are logged and the offending block is skipped — this is a
// locally recovered error per spec §7, never surfaced to the caller.
func FromToolResponses(responses []upstream.ToolResponseInfo) []models.ReferencedDocument {
	seen := make(map[string]struct{})
	var out []models.ReferencedDocument

	for _, r := range responses {
		if r.ToolName != upstream.KnowledgeSearchToolName {
			continue
		}
		for _, content := range r.Content {
			for _, block := range extractMetadataBlocks(content) {
				doc, ok := parseReferencedDocument(block)
				if !ok {
					continue
				}
				if _, dup := seen[doc.DocURL]; dup {
					continue
				}
				seen[doc.DocURL] = struct{}{}
				out = append(out, doc)
			}
		}
	}
	return out
}

// extractMetadataBlocks finds every "Metadata: { ... }" span in text,
// returning the literal-mapping text between the outermost matching
// braces for each occurrence.
func extractMetadataBlocks(text string) []string {
	var blocks []string
	i := 0
	for {
		idx := indexFrom(text, metadataMarker, i)
		if idx < 0 {
			break
		}
		braceStart := indexFrom(text, "{", idx)
		if braceStart < 0 {
			break
		}
		end := matchingBrace(text, braceStart)
		if end < 0 {
			break
		}
		blocks = append(blocks, text[braceStart:end+1])
		i = end + 1
	}
	return blocks
}

func indexFrom(s, substr string, from int) int {
	if from >= len(s) {
		return -1
	}
	idx := indexOf(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// matchingBrace returns the index of the brace matching the '{' at
// open, respecting quoted strings so a '}' inside a string literal
// doesn't terminate the block early.
func matchingBrace(s string, open int) int {
	depth := 0
	inString := false
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			if c == '\\' {
				i++ // skip escaped char
				continue
			}
			if c == quote {
				inString = false
			}
		case c == '\'' || c == '"':
			inString = true
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseReferencedDocument parses one literal-mapping block and reports
// whether it carries both required keys.
func parseReferencedDocument(block string) (models.ReferencedDocument, bool) {
	value, err := parseLiteral(block)
	if err != nil {
		slog.Warn("docs: failed to parse Metadata block, skipping", "error", err)
		return models.ReferencedDocument{}, false
	}
	m, ok := value.(map[string]any)
	if !ok {
		return models.ReferencedDocument{}, false
	}

	url, hasURL := stringField(m, "docs_url")
	title, hasTitle := stringField(m, "title")
	if !hasURL || !hasTitle {
		return models.ReferencedDocument{}, false
	}
	return models.ReferencedDocument{DocURL: url, DocTitle: title}, true
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
