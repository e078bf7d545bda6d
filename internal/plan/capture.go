package plan

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pgmentor/pgmentor/internal/pipeline"
	"github.com/pgmentor/pgmentor/internal/script"
)

// Probe checks connectivity and reports the server version and database
// name. It runs under a short timeout so a dead server fails fast.
func Probe(ctx context.Context, dbConn string) (EngineInfo, error) {
	conn, err := pgx.Connect(ctx, dbConn)
	if err != nil {
		return EngineInfo{}, fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "SET statement_timeout = '10s'"); err != nil {
		return EngineInfo{}, fmt.Errorf("setting probe timeout: %w", err)
	}

	var info EngineInfo
	err = conn.QueryRow(ctx, "SELECT version(), current_database()").Scan(&info.Version, &info.Database)
	if err != nil {
		return EngineInfo{}, fmt.Errorf("querying server version: %w", err)
	}
	return info, nil
}

// Capture runs every statement inside one transaction and returns the raw
// plan fragments in statement order. Statements EXPLAIN cannot plan are
// executed directly so later statements still see their effects. The
// transaction is always rolled back.
func Capture(ctx context.Context, dbConn string, statements []script.Statement, mode Mode) ([]Fragment, error) {
	conn, err := pgx.Connect(ctx, dbConn)
	if err != nil {
		return nil, planErr(fmt.Errorf("connecting to database: %w", err))
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, planErr(fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Plans on large tables can take arbitrarily long.
	if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = 0"); err != nil {
		return nil, planErr(fmt.Errorf("clearing statement timeout: %w", err))
	}

	var fragments []Fragment
	for i, stmt := range statements {
		if !stmt.Explainable {
			if _, err := tx.Exec(ctx, stmt.Text); err != nil {
				return nil, planErr(fmt.Errorf("executing statement %d: %w", i+1, err))
			}
			continue
		}

		var xmlStr string
		query := mode.explainPrefix() + stmt.Text
		if err := tx.QueryRow(ctx, query).Scan(&xmlStr); err != nil {
			return nil, planErr(fmt.Errorf("explaining statement %d: %w", i+1, err))
		}
		fragments = append(fragments, Fragment{StatementText: stmt.Text, XML: xmlStr})
	}

	return fragments, nil
}

func planErr(err error) error {
	return &pipeline.Error{Kind: pipeline.KindPlanGeneration, Stage: pipeline.StagePlan, Err: err}
}
