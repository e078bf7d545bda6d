package script

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Statement is one executable statement from a script. Explainable marks
// statements the engine can plan; the rest run as-is during capture.
type Statement struct {
	Text        string
	Explainable bool
}

// SplitStatements splits a script on statement boundaries using the
// PostgreSQL scanner, so semicolons inside string literals, comments, and
// dollar-quoted bodies are not treated as separators.
func SplitStatements(sql string) ([]Statement, error) {
	pieces, err := pg_query.SplitWithScanner(sql, true)
	if err != nil {
		return nil, fmt.Errorf("splitting script: %w", err)
	}

	statements := make([]Statement, 0, len(pieces))
	for _, piece := range pieces {
		text := strings.TrimSpace(piece)
		if text == "" {
			continue
		}
		expl, empty := classify(text)
		if empty {
			continue
		}
		statements = append(statements, Statement{Text: text, Explainable: expl})
	}
	return statements, nil
}

// classify reports whether EXPLAIN accepts the statement. Statements that
// fail to parse count as explainable so the engine reports the real error.
// Comment-only pieces are empty.
func classify(stmt string) (explainable, empty bool) {
	result, err := pg_query.Parse(stmt)
	if err != nil {
		return true, false
	}
	if len(result.Stmts) == 0 {
		return false, true
	}

	node := result.Stmts[0].Stmt
	switch {
	case node.GetSelectStmt() != nil,
		node.GetInsertStmt() != nil,
		node.GetUpdateStmt() != nil,
		node.GetDeleteStmt() != nil,
		node.GetMergeStmt() != nil,
		node.GetExecuteStmt() != nil,
		node.GetDeclareCursorStmt() != nil,
		node.GetCreateTableAsStmt() != nil,
		node.GetRefreshMatViewStmt() != nil:
		return true, false
	}
	return false, false
}
