package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	m "optipy.dev/pkg/optipy/internal/model"
)

// ErrParse marks malformed input. Files that fail to parse are skipped and
// recorded; they never abort the batch.
var ErrParse = errors.New("python parse error")

// PythonFileAdapter encapsulates Python-specific parsing and text
// regeneration so the domain layer can focus on pattern rules while
// delegating syntax details to an infrastructure component.
type PythonFileAdapter interface {
	// Parse builds a syntax tree for the provided filename/source pair.
	// A tree containing syntax errors yields ErrParse.
	Parse(ctx context.Context, filename string, src []byte) (*ParseTree, error)

	// Splice regenerates source text by replacing each patch's anchored byte
	// span with its replacement, then injecting any module-level imports the
	// patches require and the source lacks. Patches must not overlap; the
	// engine guarantees the invariant and Splice rejects violations.
	Splice(tree *ParseTree, patches []m.Patch) (string, error)
}

// ParseTree wraps a parsed source file together with its text. Node anchors
// minted from one ParseTree are only resolved against that same tree.
type ParseTree struct {
	Filename string
	Source   []byte

	tree *sitter.Tree
}

// Root returns the module node.
func (t *ParseTree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Content returns the source text of a node.
func (t *ParseTree) Content(n *sitter.Node) string {
	return n.Content(t.Source)
}

// SpanOf converts a node's position into a model span.
func (t *ParseTree) SpanOf(n *sitter.Node) m.Span {
	return m.Span{
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	}
}

// AnchorOf builds an anchor for a node whose path identity is already known.
func (t *ParseTree) AnchorOf(n *sitter.Node, id m.NodeID) m.Anchor {
	return m.Anchor{Node: id, Span: t.SpanOf(n)}
}

// Walk visits every named node depth-first, minting the dotted-index path
// identity for each. Returning false from fn prunes the subtree.
func (t *ParseTree) Walk(fn func(n *sitter.Node, id m.NodeID) bool) {
	walkNode(t.Root(), "0", fn)
}

func walkNode(n *sitter.Node, id m.NodeID, fn func(n *sitter.Node, id m.NodeID) bool) {
	if !fn(n, id) {
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		walkNode(n.NamedChild(i), id+m.NodeID("."+strconv.Itoa(i)), fn)
	}
}

// NodeByID resolves a dotted-index path back to a node, or nil when the path
// no longer exists in this tree.
func (t *ParseTree) NodeByID(id m.NodeID) *sitter.Node {
	parts := strings.Split(string(id), ".")
	if len(parts) == 0 || parts[0] != "0" {
		return nil
	}

	node := t.Root()

	for _, part := range parts[1:] {
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= int(node.NamedChildCount()) {
			return nil
		}

		node = node.NamedChild(idx)
	}

	return node
}

// LocalPythonFileAdapter is the concrete adapter backed by tree-sitter's
// Python grammar.
type LocalPythonFileAdapter struct{}

// NewLocalPythonFileAdapter constructs a LocalPythonFileAdapter.
func NewLocalPythonFileAdapter() *LocalPythonFileAdapter {
	return &LocalPythonFileAdapter{}
}

// Parse builds a ParseTree for the provided filename/source pair.
func (a *LocalPythonFileAdapter) Parse(ctx context.Context, filename string, src []byte) (*ParseTree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	if tree.RootNode().HasError() {
		return nil, fmt.Errorf("%w: %s contains invalid syntax", ErrParse, filename)
	}

	return &ParseTree{Filename: filename, Source: src, tree: tree}, nil
}

// Splice applies the patches to the pristine source text, highest offset
// first so earlier spans stay valid, then injects missing imports.
func (a *LocalPythonFileAdapter) Splice(tree *ParseTree, patches []m.Patch) (string, error) {
	if err := checkSpans(tree, patches); err != nil {
		return "", err
	}

	ordered := make([]m.Patch, len(patches))
	copy(ordered, patches)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Anchor.Span.StartByte > ordered[j].Anchor.Span.StartByte
	})

	text := string(tree.Source)
	imports := make([]string, 0, 2)

	for _, patch := range ordered {
		span := patch.Anchor.Span
		text = text[:span.StartByte] + patch.Replacement + text[span.EndByte:]

		for _, imp := range patch.Imports {
			if !containsString(imports, imp) {
				imports = append(imports, imp)
			}
		}
	}

	sort.Strings(imports)

	return injectImports(text, imports), nil
}

func checkSpans(tree *ParseTree, patches []m.Patch) error {
	ordered := make([]m.Patch, len(patches))
	copy(ordered, patches)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Anchor.Span.StartByte < ordered[j].Anchor.Span.StartByte
	})

	for i, patch := range ordered {
		span := patch.Anchor.Span
		if span.StartByte < 0 || span.EndByte > len(tree.Source) || span.StartByte >= span.EndByte {
			return fmt.Errorf("patch %s has a stale anchor %v", patch.ID, span)
		}

		if i > 0 && ordered[i-1].Anchor.Span.EndByte > span.StartByte {
			return fmt.Errorf("patches %s and %s overlap", ordered[i-1].ID, patch.ID)
		}
	}

	return nil
}

// injectImports inserts the import statements the text is missing, right
// below the leading shebang/comment/docstring block.
func injectImports(text string, imports []string) string {
	missing := make([]string, 0, len(imports))

	for _, imp := range imports {
		if !hasImportLine(text, imp) {
			missing = append(missing, imp)
		}
	}

	if len(missing) == 0 {
		return text
	}

	lines := strings.SplitAfter(text, "\n")
	at := importInsertionIndex(lines)

	var b strings.Builder

	for _, line := range lines[:at] {
		b.WriteString(line)
	}

	for _, imp := range missing {
		b.WriteString(imp)
		b.WriteString("\n")
	}

	for _, line := range lines[at:] {
		b.WriteString(line)
	}

	return b.String()
}

func hasImportLine(text, imp string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == imp {
			return true
		}
	}

	return false
}

// importInsertionIndex returns the line index right after leading blank
// lines, comments and a module docstring.
func importInsertionIndex(lines []string) int {
	i := 0

	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			i++
			continue
		}

		break
	}

	if i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		for _, quote := range []string{`"""`, "'''"} {
			if !strings.HasPrefix(trimmed, quote) {
				continue
			}

			rest := strings.TrimPrefix(trimmed, quote)
			i++

			if strings.Contains(rest, quote) {
				return i
			}

			for i < len(lines) {
				done := strings.Contains(lines[i], quote)
				i++

				if done {
					return i
				}
			}
		}
	}

	return i
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}

	return false
}
