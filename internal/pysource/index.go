package pysource

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrMalformedSource is returned when the source does not parse cleanly.
var ErrMalformedSource = errors.New("source does not parse")

// Category classifies a top-level construct.
type Category string

const (
	CategoryImport    Category = "import"
	CategoryFunction  Category = "function"
	CategoryClass     Category = "class"
	CategoryDocstring Category = "docstring"
	CategoryOther     Category = "other"
)

// Construct is a top-level syntactic construct and its 1-based line span.
type Construct struct {
	Category  Category
	StartLine int
	EndLine   int
}

// StructuralIndex lists the top-level constructs of a document in source order.
// It is derived data and never mutated after Parse returns it.
type StructuralIndex struct {
	constructs []Construct
}

// Parse builds a StructuralIndex for src. Any syntax error yields ErrMalformedSource.
func Parse(ctx context.Context, src []byte) (*StructuralIndex, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedSource, describeError(root))
	}

	ix := &StructuralIndex{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() == "comment" {
			continue
		}
		category := categorize(node)
		if len(ix.constructs) == 0 && isDocstring(node) {
			category = CategoryDocstring
		}
		ix.constructs = append(ix.constructs, Construct{
			Category:  category,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   endLine(node),
		})
	}
	return ix, nil
}

// Validate reports whether src parses without errors.
func Validate(ctx context.Context, src []byte) error {
	_, err := Parse(ctx, src)
	return err
}

// Constructs returns the indexed constructs in source order.
func (ix *StructuralIndex) Constructs() []Construct {
	out := make([]Construct, len(ix.constructs))
	copy(out, ix.constructs)
	return out
}

// Lines returns the start lines of every construct in category c, in order.
func (ix *StructuralIndex) Lines(c Category) []int {
	var lines []int
	for _, k := range ix.constructs {
		if k.Category == c {
			lines = append(lines, k.StartLine)
		}
	}
	return lines
}

// Last returns the construct with the greatest start line among the given categories.
func (ix *StructuralIndex) Last(categories ...Category) (Construct, bool) {
	var last Construct
	found := false
	for _, k := range ix.constructs {
		for _, c := range categories {
			if k.Category == c && (!found || k.StartLine > last.StartLine) {
				last = k
				found = true
			}
		}
	}
	return last, found
}

func categorize(node *sitter.Node) Category {
	switch node.Type() {
	case "import_statement", "import_from_statement", "future_import_statement":
		return CategoryImport
	case "function_definition":
		return CategoryFunction
	case "class_definition":
		return CategoryClass
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			return categorize(def)
		}
	}
	return CategoryOther
}

// isDocstring reports whether node is a bare string expression.
func isDocstring(node *sitter.Node) bool {
	if node.Type() != "expression_statement" || node.NamedChildCount() != 1 {
		return false
	}
	switch node.NamedChild(0).Type() {
	case "string", "concatenated_string":
		return true
	}
	return false
}

// endLine returns the 1-based last line a node occupies. A node whose end
// point sits at column 0 ends on the previous line.
func endLine(node *sitter.Node) int {
	start, end := node.StartPoint(), node.EndPoint()
	if end.Column == 0 && end.Row > start.Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}

// describeError finds the first error or missing node and reports its position.
func describeError(root *sitter.Node) string {
	var walk func(n *sitter.Node) *sitter.Node
	walk = func(n *sitter.Node) *sitter.Node {
		if n.Type() == "ERROR" || n.IsMissing() {
			return n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child != nil && child.HasError() {
				if found := walk(child); found != nil {
					return found
				}
			}
		}
		return nil
	}
	if n := walk(root); n != nil {
		return fmt.Sprintf("line %d, column %d", n.StartPoint().Row+1, n.StartPoint().Column+1)
	}
	return "unknown position"
}
