// Package transcripts appends one JSON record per completed turn under
// <root>/<sha256(user_id)>/<conversation_id>/<SUID>.json (spec §4.K,
// Component K). Each file is written exactly once: it is opened with
// O_CREATE|O_WRONLY|O_EXCL, so writing to an existing path fails instead
// of overwriting it, mirroring the spec's "no mutation" requirement.
package transcripts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lightspeed-stack/query-gateway/pkg/models"
)

// Record is the persisted shape of one turn's transcript.
type Record struct {
	UserID         string                      `json:"user_id"`
	ConversationID string                      `json:"conversation_id"`
	Query          string                      `json:"query"` // as the handler received it; no redaction is applied
	Validated      bool                        `json:"validated"`
	Response       string                      `json:"response"`
	ReferencedDocs []models.ReferencedDocument `json:"rag_chunks,omitempty"`
	Truncated      bool                        `json:"truncated"`
	Attachments    []models.Attachment         `json:"attachments,omitempty"`
	ToolCalls      []models.ToolCallSummary    `json:"tool_calls,omitempty"`
	StartedAt      time.Time                   `json:"started_at"`
	CompletedAt    time.Time                   `json:"completed_at"`
}

// Writer appends transcript records under a root directory.
type Writer struct {
	root string
}

// NewWriter returns a Writer rooted at root. root is created on first
// write, not here, so a disabled transcript writer (empty root) never
// touches the filesystem.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Enabled reports whether transcript writing is configured at all.
func (w *Writer) Enabled() bool {
	return w.root != ""
}

// Write appends one transcript record under
// <root>/<sha256(user_id)>/<conversation_id>/<suid>.json. Path components
// are sanitized against traversal: the conversation id and suid are each
// reduced to their filepath.Base and cleaned (a "." or ".." result becomes
// "_invalid"), and the resulting directory is rejected if it resolves
// outside root.
func (w *Writer) Write(userID, conversationID, suid string, record Record) error {
	if !w.Enabled() {
		return nil
	}

	dir, err := w.turnDir(userID, conversationID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("transcripts: create directory: %w", err)
	}

	path := filepath.Join(dir, sanitizeComponent(suid)+".json")
	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("transcripts: marshal record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("transcripts: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(body); err != nil {
		return fmt.Errorf("transcripts: write %s: %w", path, err)
	}
	return nil
}

func (w *Writer) turnDir(userID, conversationID string) (string, error) {
	userFragment := hashUserID(userID)
	convFragment := sanitizeComponent(conversationID)

	dir := filepath.Join(w.root, userFragment, convFragment)
	clean := filepath.Clean(dir)
	root := filepath.Clean(w.root)
	if clean != root && !hasPrefixDir(clean, root) {
		return "", fmt.Errorf("transcripts: sanitized path %q escapes root %q", clean, root)
	}
	return clean, nil
}

func hashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// sanitizeComponent strips path separators and rejects traversal
// segments from a single path component (conversation id or file stem).
func sanitizeComponent(s string) string {
	cleaned := filepath.Clean(filepath.Base(s))
	if cleaned == "." || cleaned == ".." || cleaned == string(filepath.Separator) {
		return "_invalid"
	}
	return cleaned
}

func hasPrefixDir(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
