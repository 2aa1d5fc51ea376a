package transcripts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCreatesFileUnderHashedUserDirectory(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	record := Record{
		UserID:         "alice",
		ConversationID: "conv-1",
		Query:          "what is RAG?",
		Response:       "retrieval augmented generation",
		StartedAt:      time.Now(),
		CompletedAt:    time.Now(),
	}

	require.NoError(t, w.Write("alice", "conv-1", "turn-1", record))

	userDir := hashUserID("alice")
	path := filepath.Join(root, userDir, "conv-1", "turn-1.json")
	body, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "what is RAG?", got.Query)
}

func TestWriteRejectsDuplicateFile(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)
	record := Record{UserID: "bob", ConversationID: "conv-2"}

	require.NoError(t, w.Write("bob", "conv-2", "turn-1", record))
	err := w.Write("bob", "conv-2", "turn-1", record)
	assert.Error(t, err)
}

func TestWriteSanitizesTraversalInConversationID(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	require.NoError(t, w.Write("carol", "../../etc", "turn-1", Record{}))

	userDir := hashUserID("carol")
	_, err := os.Stat(filepath.Join(root, userDir, "etc", "turn-1.json"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(filepath.Dir(root), "etc"))
	assert.Error(t, err)
}

func TestDisabledWriterIsNoop(t *testing.T) {
	w := NewWriter("")
	assert.False(t, w.Enabled())
	assert.NoError(t, w.Write("dave", "conv-3", "turn-1", Record{}))
}

func TestHashUserIDIsStableAndNotPlaintext(t *testing.T) {
	h1 := hashUserID("eve")
	h2 := hashUserID("eve")
	assert.Equal(t, h1, h2)
	assert.NotContains(t, h1, "eve")
	assert.Len(t, h1, 64)
}
