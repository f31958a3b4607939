package patch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sha1n/mr-pickles/internal/pysource"
	"github.com/sha1n/mr-pickles/internal/snippet"
)

// Result describes a splice.
type Result struct {
	Path    string
	Changed bool

	// ImportsAdded are the import lines that were not already present.
	ImportsAdded []string

	// BodyLines is the number of body lines inserted.
	BodyLines int

	Plan pysource.Plan
}

// Applier splices snippets into a host file.
//
// The host file is not locked: callers must ensure a single writer per file.
type Applier struct {
	logger *slog.Logger
}

// NewApplier creates an Applier. A nil logger uses slog.Default().
func NewApplier(logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{logger: logger}
}

// Splice merges s into the file at path and writes it back atomically.
// On any error the file is left untouched.
func (a *Applier) Splice(ctx context.Context, path string, s snippet.Snippet, marker string) (*Result, error) {
	if s.Empty() {
		return nil, ErrEmptySnippet
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host file: %w", err)
	}

	merged, result, err := Merge(ctx, src, s, marker)
	if err != nil {
		return nil, err
	}
	result.Path = path

	if !result.Changed {
		a.logger.Info("Snippet already present, host unchanged", "path", path)
		return result, nil
	}

	if err := WriteFileAtomic(path, merged, 0644); err != nil {
		return nil, fmt.Errorf("failed to write host file: %w", err)
	}

	a.logger.Info("Spliced snippet into host",
		"path", path,
		"imports_added", len(result.ImportsAdded),
		"body_lines", result.BodyLines,
		"import_at", result.Plan.ImportInsertAt,
		"body_at", result.Plan.BodyInsertAt,
		"marker", result.Plan.MarkerFound,
	)
	return result, nil
}

// Merge computes the spliced source without touching the file system.
func Merge(ctx context.Context, src []byte, s snippet.Snippet, marker string) ([]byte, *Result, error) {
	if s.Empty() {
		return nil, nil, ErrEmptySnippet
	}

	ix, err := pysource.Parse(ctx, src)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedHost, err)
	}

	doc := pysource.NewDocument(string(src))
	plan := pysource.Locate(doc, ix, marker)
	result := &Result{Plan: plan}

	imports := newImports(doc, s.Imports)
	body := reindent(s.Body, plan.Indent)
	if len(imports) == 0 && len(body) == 0 {
		return src, result, nil
	}

	merged := doc.Clone()
	merged.InsertAfter(plan.ImportInsertAt, imports)

	bodyAt := plan.BodyInsertAt
	if plan.ImportInsertAt <= plan.BodyInsertAt {
		bodyAt += len(imports)
	}
	merged.InsertAfter(bodyAt, body)

	out := []byte(merged.String())
	if err := pysource.Validate(ctx, out); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSyntaxInvalidAfterPatch, err)
	}

	result.Changed = true
	result.ImportsAdded = imports
	result.BodyLines = len(body)
	return out, result, nil
}

// newImports drops import statements already present in doc or repeated
// within the snippet. Continuation lines of a multi-line import stay with
// their statement.
func newImports(doc *pysource.Document, imports []string) []string {
	var statements [][]string
	for _, imp := range imports {
		if len(statements) == 0 || isImportStart(imp) {
			statements = append(statements, []string{imp})
			continue
		}
		last := len(statements) - 1
		statements[last] = append(statements[last], imp)
	}

	text := doc.String()
	seen := make(map[string]bool)
	var out []string
	for _, stmt := range statements {
		key := strings.Join(stmt, "\n")
		present := doc.HasLine(stmt[0])
		if len(stmt) > 1 {
			present = strings.Contains(text, key)
		}
		if seen[key] || present {
			continue
		}
		seen[key] = true
		out = append(out, stmt...)
	}
	return out
}

func isImportStart(line string) bool {
	return strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "from ")
}

// reindent prefixes every non-blank line with indent.
func reindent(lines []string, indent string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" || indent == "" {
			out[i] = line
			continue
		}
		out[i] = indent + line
	}
	return out
}
