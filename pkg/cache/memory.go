package cache

import (
	"context"

	"github.com/lightspeed-stack/query-gateway/pkg/models"
)

// Memory is a thin compatibility shim: it validates user/conversation ids
// exactly like the persistent backends but never actually stores anything.
// It exists for deployments that request a "memory" backend without
// needing real persistence across requests.
type Memory struct{}

// NewMemory constructs a Memory cache.
func NewMemory() *Memory { return &Memory{} }

// Get implements Cache.
func (Memory) Get(_ context.Context, userID, convID string, skipUserIDCheck bool) ([]Entry, error) {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return nil, err
	}
	return nil, nil
}

// Insert implements Cache.
func (Memory) Insert(_ context.Context, userID, convID string, _ Entry, skipUserIDCheck bool) error {
	return validateIDs(userID, convID, skipUserIDCheck)
}

// Delete implements Cache.
func (Memory) Delete(_ context.Context, userID, convID string, skipUserIDCheck bool) (bool, error) {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return false, err
	}
	return false, nil
}

// List implements Cache.
func (Memory) List(_ context.Context, userID string, skipUserIDCheck bool) ([]models.ConversationData, error) {
	if err := validateIDs(userID, "", skipUserIDCheck); err != nil {
		return nil, err
	}
	return nil, nil
}

// SetTopicSummary implements Cache.
func (Memory) SetTopicSummary(_ context.Context, userID, convID, _ string, skipUserIDCheck bool) error {
	return validateIDs(userID, convID, skipUserIDCheck)
}

// GetConversation implements Cache. Memory never stores anything, so every
// lookup reports ErrConversationNotFound once ids validate.
func (Memory) GetConversation(_ context.Context, userID, convID string, skipUserIDCheck bool) (*models.UserConversation, error) {
	if err := validateIDs(userID, convID, skipUserIDCheck); err != nil {
		return nil, err
	}
	return nil, ErrConversationNotFound
}
