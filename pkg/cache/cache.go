// Package cache implements the conversation cache: the per-turn history
// store plus the conversations side-table used for listing and ownership
// checks. Four backends share one Cache interface: sqlite, postgres,
// memory (a validating no-op store), and noop (always empty).
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/lightspeed-stack/query-gateway/pkg/models"
	"github.com/lightspeed-stack/query-gateway/pkg/suid"
)

// ErrInvalidUserID is returned when a user_id fails UUID validation and
// skipUserIDCheck was not requested.
var ErrInvalidUserID = errors.New("cache: invalid user_id")

// ErrInvalidConversationID is returned when a conv_id fails UUID validation.
var ErrInvalidConversationID = errors.New("cache: invalid conversation_id")

// ErrConversationNotFound is returned by GetConversation when no
// conversations row exists for (userID, convID).
var ErrConversationNotFound = errors.New("cache: conversation not found")

// Entry is one stored turn.
type Entry struct {
	Query               string
	Response            string
	Provider            string
	Model               string
	StartedAt           time.Time
	CompletedAt         time.Time
	CreatedAt           time.Time
	ReferencedDocuments []models.ReferencedDocument
}

// Cache is the conversation cache contract. Every operation accepts
// skipUserIDCheck, disabling the UUID-format check on userID (used by auth
// modules like noop that hand out non-UUID identifiers).
type Cache interface {
	Get(ctx context.Context, userID, convID string, skipUserIDCheck bool) ([]Entry, error)
	Insert(ctx context.Context, userID, convID string, entry Entry, skipUserIDCheck bool) error
	Delete(ctx context.Context, userID, convID string, skipUserIDCheck bool) (bool, error)
	List(ctx context.Context, userID string, skipUserIDCheck bool) ([]models.ConversationData, error)
	SetTopicSummary(ctx context.Context, userID, convID, topicSummary string, skipUserIDCheck bool) error

	// GetConversation returns the UserConversation side-table row, the
	// authoritative source for ownership checks and last-used model/
	// provider hints (spec §3, §4.I step 3/5). Returns
	// ErrConversationNotFound if no row exists for (userID, convID).
	GetConversation(ctx context.Context, userID, convID string, skipUserIDCheck bool) (*models.UserConversation, error)
}

// validateIDs enforces the UUID-format check shared by every backend that
// actually persists data.
func validateIDs(userID, convID string, skipUserIDCheck bool) error {
	if !skipUserIDCheck && !suid.IsValid(userID) {
		return ErrInvalidUserID
	}
	if convID != "" && !suid.IsValid(convID) {
		return ErrInvalidConversationID
	}
	return nil
}
