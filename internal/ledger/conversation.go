package ledger

import (
	"log/slog"
	"path/filepath"

	"github.com/sha1n/mr-pickles/internal/domain"
)

// ConversationFilename is the conversation ledger file name inside the state directory.
const ConversationFilename = "conversation_history.json"

// Conversation is the ordered ledger of conversation turns.
type Conversation struct {
	store *Store[domain.ConversationEntry]
}

// NewConversation opens the conversation ledger in dir.
func NewConversation(dir string, logger *slog.Logger) *Conversation {
	return &Conversation{
		store: NewStore[domain.ConversationEntry](filepath.Join(dir, ConversationFilename), logger),
	}
}

// Append adds entries at the end of the ledger.
func (c *Conversation) Append(entries ...domain.ConversationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return c.store.Update(func(all []domain.ConversationEntry) ([]domain.ConversationEntry, error) {
		return append(all, entries...), nil
	})
}

// List returns all entries in order.
func (c *Conversation) List() ([]domain.ConversationEntry, error) {
	return c.store.Load()
}

// Recent returns up to n of the latest entries.
func (c *Conversation) Recent(n int) ([]domain.ConversationEntry, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}
