package model

// Path represents a file system path.
type Path string

// SourceUnit is one script under optimization. It is owned by the pipeline
// for the duration of one file's processing and never shared across files.
type SourceUnit struct {
	Origin    Path
	ShortPath Path
	Hash      string
	Text      string
}

// NodeID addresses a syntax-tree node as a dotted named-child index path
// from the root ("0", "0.3", "0.3.1", ...). IDs stay valid as long as the
// tree they were minted from is the tree being consulted; patches are always
// spliced against the pristine original, so an ID never outlives its tree.
type NodeID string

// Span is a half-open byte range with line information for display.
type Span struct {
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
}

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.StartByte < other.EndByte && other.StartByte < s.EndByte
}

// Anchor is a stable reference into a parsed tree: the node's path identity
// plus its source span.
type Anchor struct {
	Node NodeID
	Span Span
}
