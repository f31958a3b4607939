package domain

import "time"

// FeatureStatus is the lifecycle state of a feature request.
type FeatureStatus string

const (
	FeatureStatusPending   FeatureStatus = "pending"
	FeatureStatusCompleted FeatureStatus = "completed"
	FeatureStatusFailed    FeatureStatus = "failed"
)

// Valid reports whether s is a known status.
func (s FeatureStatus) Valid() bool {
	switch s {
	case FeatureStatusPending, FeatureStatusCompleted, FeatureStatusFailed:
		return true
	}
	return false
}

// FeatureRecord is one entry of the feature request ledger.
// Request and Status are the only fields older ledgers carry; the rest are optional.
type FeatureRecord struct {
	// Request is the raw request text and the ledger key.
	Request string `json:"request"`

	Status FeatureStatus `json:"status"`

	// ID is a random identifier assigned when the record is created.
	ID string `json:"id,omitempty"`

	// Name is the feature identifier derived from the generated code or the request.
	Name string `json:"name,omitempty"`

	// Branch is the branch the change was pushed to.
	Branch string `json:"branch,omitempty"`

	// PullRequestURL points at the opened pull/merge request, if the host returned one.
	PullRequestURL string `json:"pull_request_url,omitempty"`

	// Files are the paths written for this feature, relative to the working copy.
	Files []string `json:"files,omitempty"`

	// SnippetHash fingerprints the classified snippet (xxh3, hex).
	SnippetHash string `json:"snippet_hash,omitempty"`

	// Error holds the failure reason when Status is failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}
