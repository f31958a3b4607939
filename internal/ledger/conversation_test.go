package ledger

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sha1n/mr-pickles/internal/domain"
)

func TestConversation_AppendAndRecent(t *testing.T) {
	c := NewConversation(t.TempDir(), nil)

	entries := []domain.ConversationEntry{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "oh, it's you"},
		{Role: domain.RoleUser, Content: "tell me a joke"},
	}
	if err := c.Append(entries[:2]...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := c.Append(entries[2]); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := c.Append(); err != nil {
		t.Fatalf("Append with no entries failed: %v", err)
	}

	all, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if diff := cmp.Diff(entries, all); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	recent, err := c.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if diff := cmp.Diff(entries[1:], recent); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}
}
