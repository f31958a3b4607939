// Package recall keeps an in-memory full-text index of past user requests so
// the assistant can point out related earlier conversations.
package recall

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/zeebo/xxh3"

	"github.com/sha1n/mr-pickles/internal/domain"
)

// DefaultMaxResults caps how many related requests are returned.
const DefaultMaxResults = 3

// Match is a past request related to a query.
type Match struct {
	Content  string
	Position int
	Score    float64
}

// Index is an in-memory bleve index of past user requests.
type Index struct {
	index      bleve.Index
	maxResults int
	mu         sync.RWMutex
}

// CreateIndexMapping creates the bleve mapping for history documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	docMapping.AddFieldMappingsAt(domain.HistoryFieldContent, contentField)

	positionField := bleve.NewNumericFieldMapping()
	positionField.Index = false
	positionField.Store = true
	docMapping.AddFieldMappingsAt(domain.HistoryFieldPosition, positionField)

	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.HistoryFieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// NewIndex creates an empty in-memory index.
func NewIndex(maxResults int) (*Index, error) {
	idx, err := bleve.NewMemOnly(CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create recall index: %w", err)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Index{index: idx, maxResults: maxResults}, nil
}

// DocumentID returns the stable ID of a request text.
func DocumentID(content string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(content))
}

// Add indexes a single user request.
func (i *Index) Add(content string, position int) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	doc := domain.HistoryDocument{ID: DocumentID(content), Content: content, Position: position}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to index request: %w", err)
	}
	return nil
}

// AddEntries indexes the user turns of a conversation in one batch.
func (i *Index) AddEntries(entries []domain.ConversationEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.index.NewBatch()
	for pos, e := range entries {
		content := strings.TrimSpace(e.Content)
		if e.Role != domain.RoleUser || content == "" {
			continue
		}
		doc := domain.HistoryDocument{ID: DocumentID(content), Content: content, Position: pos}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to batch request: %w", err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index conversation: %w", err)
	}
	return nil
}

// Related returns past requests sharing terms with query, best first.
// A request identical to query is not reported.
func (i *Index) Related(ctx context.Context, query string) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(domain.HistoryFieldContent)

	req := bleve.NewSearchRequest(q)
	req.Size = i.maxResults + 1
	req.Fields = []string{domain.HistoryFieldContent, domain.HistoryFieldPosition}

	i.mu.RLock()
	results, err := i.index.SearchInContext(ctx, req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("recall search failed: %w", err)
	}

	self := DocumentID(query)
	var matches []Match
	for _, hit := range results.Hits {
		if hit.ID == self {
			continue
		}
		m := Match{Score: hit.Score}
		if v, ok := hit.Fields[domain.HistoryFieldContent].(string); ok {
			m.Content = v
		}
		if v, ok := hit.Fields[domain.HistoryFieldPosition].(float64); ok {
			m.Position = int(v)
		}
		matches = append(matches, m)
		if len(matches) == i.maxResults {
			break
		}
	}
	return matches, nil
}

// Count returns the number of indexed requests.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}
