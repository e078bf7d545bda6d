package plan

// Namespace is the XML namespace PostgreSQL stamps on EXPLAIN output.
const Namespace = "http://www.postgresql.org/2009/explain"

// Fragment is the raw XML produced for one statement.
type Fragment struct {
	StatementText string
	XML           string
}

// Document is the merged plan for a whole script. Degraded marks documents
// that fell back to verbatim wrapping instead of a structural merge.
type Document struct {
	Database       string
	Actual         bool
	Degraded       bool
	DegradedReason string
	Fragments      []Fragment
	MergedXML      string
}

// ObjectReference identifies a relation mentioned by a plan.
type ObjectReference struct {
	Database string
	Schema   string
	Name     string
}

func (r ObjectReference) String() string {
	return r.Schema + "." + r.Name
}

// EngineInfo describes the server a capture ran against.
type EngineInfo struct {
	Version  string
	Database string
}
