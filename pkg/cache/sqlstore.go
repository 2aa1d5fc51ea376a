package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightspeed-stack/query-gateway/pkg/models"
)

// placeholder produces the n-th (1-indexed) bind placeholder for a dialect
// ("?" for sqlite, "$1"/"$2"/... for postgres).
type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string     { return "?" }
func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// sqlCache is the shared `cache`/`conversations` table implementation used
// by both the sqlite and postgres backends; only connection setup,
// migrations, and bind-placeholder syntax differ between them.
type sqlCache struct {
	db deferredExecer
	ph placeholderFunc
}

// deferredExecer is the subset of *sql.DB this package needs, so the
// reconnect decorator can substitute a wrapper that reopens on failure.
type deferredExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *sqlCache) p(n int) string { return c.ph(n) }

// Get implements Cache.
func (c *sqlCache) Get(ctx context.Context, userID, convID string, skipUserIDCheck bool) ([]Entry, error) {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		SELECT started_at, completed_at, created_at, query, response, provider, model, referenced_documents
		FROM cache WHERE user_id = %s AND conv_id = %s ORDER BY created_at ASC
	`, c.p(1), c.p(2))
	rows, err := c.db.QueryContext(ctx, q, userID, convID)
	if err != nil {
		return nil, fmt.Errorf("cache: get: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var refDocs sql.NullString
		if err := rows.Scan(&e.StartedAt, &e.CompletedAt, &e.CreatedAt, &e.Query, &e.Response, &e.Provider, &e.Model, &refDocs); err != nil {
			return nil, fmt.Errorf("cache: get: scan: %w", err)
		}
		e.ReferencedDocuments = decodeReferencedDocuments(refDocs)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Insert implements Cache.
func (c *sqlCache) Insert(ctx context.Context, userID, convID string, entry Entry, skipUserIDCheck bool) error {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return err
	}

	refDocs, err := encodeReferencedDocuments(entry.ReferencedDocuments)
	if err != nil {
		return fmt.Errorf("cache: insert: encode referenced_documents: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	insertCache := fmt.Sprintf(`
		INSERT INTO cache (user_id, conv_id, created_at, started_at, completed_at, query, response, provider, model, referenced_documents)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
	`, c.p(1), c.p(2), c.p(3), c.p(4), c.p(5), c.p(6), c.p(7), c.p(8), c.p(9), c.p(10))
	if _, err := c.db.ExecContext(ctx, insertCache,
		userID, convID, createdAt, entry.StartedAt, entry.CompletedAt, entry.Query, entry.Response, entry.Provider, entry.Model, refDocs,
	); err != nil {
		return fmt.Errorf("cache: insert: %w", err)
	}

	return c.bumpConversation(ctx, userID, convID, "", entry.Provider, entry.Model, createdAt, false, true)
}

// Delete implements Cache.
func (c *sqlCache) Delete(ctx context.Context, userID, convID string, skipUserIDCheck bool) (bool, error) {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return false, err
	}

	delCache := fmt.Sprintf(`DELETE FROM cache WHERE user_id = %s AND conv_id = %s`, c.p(1), c.p(2))
	res, err := c.db.ExecContext(ctx, delCache, userID, convID)
	if err != nil {
		return false, fmt.Errorf("cache: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cache: delete: rows affected: %w", err)
	}

	delConv := fmt.Sprintf(`DELETE FROM conversations WHERE user_id = %s AND conv_id = %s`, c.p(1), c.p(2))
	if _, err := c.db.ExecContext(ctx, delConv, userID, convID); err != nil {
		return false, fmt.Errorf("cache: delete conversation row: %w", err)
	}

	return n > 0, nil
}

// List implements Cache.
func (c *sqlCache) List(ctx context.Context, userID string, skipUserIDCheck bool) ([]models.ConversationData, error) {
	if err := validateIDs(userID, "", skipUserIDCheck); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		SELECT conv_id, topic_summary, last_message_timestamp
		FROM conversations WHERE user_id = %s ORDER BY last_message_timestamp DESC
	`, c.p(1))
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationData
	for rows.Next() {
		var d models.ConversationData
		if err := rows.Scan(&d.ConversationID, &d.TopicSummary, &d.LastMessageTimestamp); err != nil {
			return nil, fmt.Errorf("cache: list: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetTopicSummary implements Cache.
func (c *sqlCache) SetTopicSummary(ctx context.Context, userID, convID, topicSummary string, skipUserIDCheck bool) error {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return err
	}
	return c.bumpConversation(ctx, userID, convID, topicSummary, "", "", time.Now().UTC(), true, false)
}

// GetConversation implements Cache. The lookup is keyed on convID alone
// (not scoped to userID): conv_id is globally unique (it is the upstream
// agent id), and callers need the row's actual owner to enforce the
// ownership invariant (spec §3) even for callers with cross-user
// capability. userID is only used to pick the UUID-format validation
// path; ownership comparison is the caller's responsibility.
func (c *sqlCache) GetConversation(ctx context.Context, userID, convID string, skipUserIDCheck bool) (*models.UserConversation, error) {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		SELECT user_id, conv_id, topic_summary, last_message_timestamp, last_used_model, last_used_provider, message_count
		FROM conversations WHERE conv_id = %s
	`, c.p(1))
	row := c.db.QueryRowContext(ctx, q, convID)

	var uc models.UserConversation
	var lastMessageTS int64
	if err := row.Scan(&uc.UserID, &uc.ID, &uc.TopicSummary, &lastMessageTS, &uc.LastUsedModel, &uc.LastUsedProvider, &uc.MessageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("cache: get conversation: %w", err)
	}
	uc.LastMessageAt = time.Unix(lastMessageTS, 0).UTC()
	return &uc, nil
}

// bumpConversation upserts the conversations side-table row, always bumping
// last_message_timestamp. When setTopic is true, topicSummary always
// overwrites; otherwise the existing topic_summary (if any) is preserved.
// provider/model, when non-empty, overwrite last_used_provider/
// last_used_model. incrementMessageCount is true only for turn inserts
// (spec §4.E: set_topic_summary bumps the timestamp but not the count).
func (c *sqlCache) bumpConversation(ctx context.Context, userID, convID, topicSummary, provider, model string, at time.Time, setTopic, incrementMessageCount bool) error {
	ts := at.Unix()

	topicClause := "conversations.topic_summary"
	if setTopic {
		topicClause = "excluded.topic_summary"
	}
	modelClause := "conversations.last_used_model"
	providerClause := "conversations.last_used_provider"
	if model != "" || provider != "" {
		modelClause = "excluded.last_used_model"
		providerClause = "excluded.last_used_provider"
	}
	countClause := "conversations.message_count"
	initialCount := 0
	if incrementMessageCount {
		countClause = "conversations.message_count + 1"
		initialCount = 1
	}

	q := fmt.Sprintf(`
		INSERT INTO conversations (user_id, conv_id, topic_summary, last_message_timestamp, last_used_model, last_used_provider, message_count)
		VALUES (%s, %s, %s, %s, %s, %s, %d)
		ON CONFLICT (user_id, conv_id) DO UPDATE SET
			topic_summary = %s,
			last_message_timestamp = excluded.last_message_timestamp,
			last_used_model = %s,
			last_used_provider = %s,
			message_count = %s
	`, c.p(1), c.p(2), c.p(3), c.p(4), c.p(5), c.p(6), initialCount, topicClause, modelClause, providerClause, countClause)
	_, err := c.db.ExecContext(ctx, q, userID, convID, topicSummary, ts, model, provider)
	return err
}

// encodeReferencedDocuments returns nil for an empty slice so callers bind
// a SQL NULL, preserving the missing-vs-empty distinction the spec requires.
func encodeReferencedDocuments(docs []models.ReferencedDocument) (any, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodeReferencedDocuments returns nil on a NULL column or on a decode
// failure (logged, not fatal, per spec: "log and continue with null").
func decodeReferencedDocuments(raw sql.NullString) []models.ReferencedDocument {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var docs []models.ReferencedDocument
	if err := json.Unmarshal([]byte(raw.String), &docs); err != nil {
		slog.Error("cache: failed to decode referenced_documents, returning null", "error", err)
		return nil
	}
	return docs
}
