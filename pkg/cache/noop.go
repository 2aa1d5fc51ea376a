package cache

import (
	"context"

	"github.com/lightspeed-stack/query-gateway/pkg/models"
)

// Noop is a Cache backend that stores nothing and always succeeds, with no
// id validation at all. Used when conversation history is not wanted.
type Noop struct{}

// NewNoop constructs a Noop cache.
func NewNoop() *Noop { return &Noop{} }

// Get implements Cache.
func (Noop) Get(context.Context, string, string, bool) ([]Entry, error) { return nil, nil }

// Insert implements Cache.
func (Noop) Insert(context.Context, string, string, Entry, bool) error { return nil }

// Delete implements Cache.
func (Noop) Delete(context.Context, string, string, bool) (bool, error) { return false, nil }

// List implements Cache.
func (Noop) List(context.Context, string, bool) ([]models.ConversationData, error) { return nil, nil }

// SetTopicSummary implements Cache.
func (Noop) SetTopicSummary(context.Context, string, string, string, bool) error { return nil }

// GetConversation implements Cache.
func (Noop) GetConversation(context.Context, string, string, bool) (*models.UserConversation, error) {
	return nil, ErrConversationNotFound
}
