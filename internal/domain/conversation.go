package domain

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationEntry is a single turn of the conversation ledger.
type ConversationEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryDocument is a past user request stored in the recall index.
type HistoryDocument struct {
	// ID is the xxh3 hash of the content, so repeated requests collapse into one document.
	ID string `json:"id"`

	// Content is the request text.
	Content string `json:"content"`

	// Position is the index of the entry in the conversation ledger.
	Position int `json:"position"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	HistoryFieldID       = "id"
	HistoryFieldContent  = "content"
	HistoryFieldPosition = "position"
)
