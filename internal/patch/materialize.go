package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sha1n/mr-pickles/internal/pysource"
	"github.com/sha1n/mr-pickles/internal/snippet"
)

// maxModuleSuffix bounds the search for a free module name.
const maxModuleSuffix = 100

// MaterializeRequest describes a feature to write as its own module.
type MaterializeRequest struct {
	HostPath string
	Name     string
	Request  string
	Snippet  snippet.Snippet
}

// MaterializeResult lists what was written.
type MaterializeResult struct {
	Module     string
	Package    string
	ModulePath string
	DocPath    string
	EntryPoint string

	// HostChanged is false when the host already referenced the module.
	HostChanged bool

	// Files are all paths created or modified.
	Files []string
}

// Materializer writes each feature to <features dir>/<module>.py and adds a
// single import of it to the host file.
type Materializer struct {
	featuresDir string
	docsDir     string
	logger      *slog.Logger
	writeFile   func(path string, data []byte, perm os.FileMode) error
}

// NewMaterializer creates a Materializer. An empty docsDir disables docs.
func NewMaterializer(featuresDir, docsDir string, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		featuresDir: featuresDir,
		docsDir:     docsDir,
		logger:      logger,
		writeFile:   WriteFileAtomic,
	}
}

// Materialize writes the package marker, the feature module, the feature doc
// and finally the host import. Nothing is written if the module or the merged
// host does not parse, and a failed write removes what this call created.
func (m *Materializer) Materialize(ctx context.Context, req MaterializeRequest) (*MaterializeResult, error) {
	if req.Snippet.Empty() {
		return nil, ErrEmptySnippet
	}

	pkg, err := packagePath(req.HostPath, m.featuresDir)
	if err != nil {
		return nil, err
	}

	moduleText := []byte(req.Snippet.Text())
	if err := pysource.Validate(ctx, moduleText); err != nil {
		return nil, fmt.Errorf("%w: feature module: %w", ErrSyntaxInvalidAfterPatch, err)
	}

	module, modulePath, exists, err := m.freeModule(snippet.ModuleName(req.Name), moduleText)
	if err != nil {
		return nil, err
	}

	hostSrc, err := os.ReadFile(req.HostPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read host file: %w", err)
	}
	hostOut, hostChanged, err := AddModuleImport(ctx, hostSrc, pkg+"."+module)
	if err != nil {
		return nil, err
	}

	result := &MaterializeResult{
		Module:      module,
		Package:     pkg,
		ModulePath:  modulePath,
		EntryPoint:  req.Snippet.EntryPoint(),
		HostChanged: hostChanged,
	}

	// Files this call creates are removed again if a later step fails.
	// The host is written last so it never imports a module that is not there.
	var created []string
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			_ = os.Remove(created[i])
		}
	}
	if _, err := os.Stat(m.featuresDir); errors.Is(err, os.ErrNotExist) {
		created = append(created, m.featuresDir)
	}

	initPath := filepath.Join(m.featuresDir, "__init__.py")
	if _, err := os.Stat(initPath); errors.Is(err, os.ErrNotExist) {
		if err := m.writeFile(initPath, nil, 0644); err != nil {
			rollback()
			return nil, fmt.Errorf("failed to create package marker: %w", err)
		}
		created = append(created, initPath)
		result.Files = append(result.Files, initPath)
	}

	if !exists {
		if err := m.writeFile(modulePath, moduleText, 0644); err != nil {
			rollback()
			return nil, fmt.Errorf("failed to write feature module: %w", err)
		}
		created = append(created, modulePath)
	}
	result.Files = append(result.Files, modulePath)

	if m.docsDir != "" {
		if _, err := os.Stat(m.docsDir); errors.Is(err, os.ErrNotExist) {
			created = append(created, m.docsDir)
		}
		docPath := filepath.Join(m.docsDir, module+".md")
		_, statErr := os.Stat(docPath)
		if _, err := WriteFeatureDoc(m.docsDir, FeatureDoc{
			Module:     module,
			Package:    pkg,
			Request:    req.Request,
			EntryPoint: result.EntryPoint,
		}); err != nil {
			rollback()
			return nil, err
		}
		if errors.Is(statErr, os.ErrNotExist) {
			created = append(created, docPath)
		}
		result.DocPath = docPath
		result.Files = append(result.Files, docPath)
	}

	if hostChanged {
		if err := m.writeFile(req.HostPath, hostOut, 0644); err != nil {
			rollback()
			return nil, fmt.Errorf("failed to write host file: %w", err)
		}
		result.Files = append(result.Files, req.HostPath)
	}

	m.logger.Info("Materialized feature",
		"module", pkg+"."+module,
		"path", modulePath,
		"host_changed", hostChanged,
		"entry_point", result.EntryPoint,
	)
	return result, nil
}

// AddModuleImport inserts "from <dotted> import *" after the host's last
// import. The host must parse before and after; an existing identical line
// leaves it unchanged.
func AddModuleImport(ctx context.Context, hostSrc []byte, dotted string) ([]byte, bool, error) {
	ix, err := pysource.Parse(ctx, hostSrc)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedHost, err)
	}

	line := fmt.Sprintf("from %s import *", dotted)
	doc := pysource.NewDocument(string(hostSrc))
	if doc.HasLine(line) {
		return hostSrc, false, nil
	}

	plan := pysource.Locate(doc, ix, "")
	doc.InsertAfter(plan.ImportInsertAt, []string{line})
	if doc.Len() == 1 {
		doc.TrailingNewline = true
	}

	out := []byte(doc.String())
	if err := pysource.Validate(ctx, out); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSyntaxInvalidAfterPatch, err)
	}
	return out, true, nil
}

// freeModule picks the module name to write. An existing module with the same
// content is reused; a different one gets a numeric suffix.
func (m *Materializer) freeModule(base string, content []byte) (module, path string, exists bool, err error) {
	for i := 1; i <= maxModuleSuffix; i++ {
		module = base
		if i > 1 {
			module = fmt.Sprintf("%s_%d", base, i)
		}
		path = filepath.Join(m.featuresDir, module+".py")

		existing, readErr := os.ReadFile(path)
		if errors.Is(readErr, os.ErrNotExist) {
			return module, path, false, nil
		}
		if readErr != nil {
			return "", "", false, fmt.Errorf("failed to read feature module: %w", readErr)
		}
		if bytes.Equal(existing, content) {
			return module, path, true, nil
		}
	}
	return "", "", false, fmt.Errorf("no free module name for %q", base)
}

// packagePath returns the dotted package of featuresDir relative to the host's directory.
func packagePath(hostPath, featuresDir string) (string, error) {
	hostDir, err := filepath.Abs(filepath.Dir(hostPath))
	if err != nil {
		return "", err
	}
	dir, err := filepath.Abs(featuresDir)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(hostDir, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrFeaturesOutsideHost, featuresDir)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if snippet.ModuleName(p) != p {
			return "", fmt.Errorf("features directory %q is not a valid python package path", featuresDir)
		}
	}
	return strings.Join(parts, "."), nil
}
