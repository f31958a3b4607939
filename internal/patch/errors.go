// Package patch merges classified snippets into Python sources, either by
// splicing them into a host file or by writing a dedicated feature module.
package patch

import "errors"

var (
	// ErrEmptySnippet means nothing usable was extracted from the generated text.
	ErrEmptySnippet = errors.New("no code could be extracted from the generated text")

	// ErrMalformedHost means the host file did not parse before patching.
	ErrMalformedHost = errors.New("host document is malformed")

	// ErrSyntaxInvalidAfterPatch means the merged result did not parse; nothing was written.
	ErrSyntaxInvalidAfterPatch = errors.New("patched document does not parse")

	// ErrFeaturesOutsideHost means the features directory is not below the host's directory.
	ErrFeaturesOutsideHost = errors.New("features directory must be inside the host directory")
)
