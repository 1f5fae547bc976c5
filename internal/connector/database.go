package connector

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver for external sources

	"knowledge-platform/models"
)

// DatabaseConnector executes configured queries against an external
// relational source and maps each row to one content unit via the query's
// id_column/text_column. A failed query is a recorded per-item error; the
// remaining queries still run.
type DatabaseConnector struct {
	driverName string
}

func NewDatabaseConnector() *DatabaseConnector {
	return &DatabaseConnector{driverName: "pgx"}
}

func (c *DatabaseConnector) Type() string { return models.SourceTypeDatabase }

func (c *DatabaseConnector) Validate(_ context.Context, spec FetchSpec) error {
	if spec.Source.Location == "" {
		return fmt.Errorf("database source has no DSN")
	}
	if len(spec.Source.Params.Queries) == 0 {
		return fmt.Errorf("database source has no queries configured")
	}
	for _, q := range spec.Source.Params.Queries {
		if q.SQL == "" || q.IDColumn == "" || q.TextColumn == "" {
			return fmt.Errorf("query %q needs sql, id_column and text_column", q.Name)
		}
	}
	return nil
}

func (c *DatabaseConnector) Fetch(ctx context.Context, spec FetchSpec) (<-chan Item, <-chan ItemError) {
	items := make(chan Item)
	errs := make(chan ItemError)

	go func() {
		defer close(items)
		defer close(errs)

		dsn := spec.Source.Location
		if spec.Credentials != "" {
			dsn = spec.Credentials // full DSN supplied as credential
		}

		db, err := sql.Open(c.driverName, dsn)
		if err != nil {
			emitErr(ctx, errs, "connect", err)
			return
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			emitErr(ctx, errs, "connect", err)
			return
		}

		for _, query := range spec.Source.Params.Queries {
			if ctx.Err() != nil {
				return
			}
			c.runQuery(ctx, db, query, items, errs)
		}
	}()

	return items, errs
}

func (c *DatabaseConnector) runQuery(ctx context.Context, db *sql.DB, query models.SourceQuery, items chan<- Item, errs chan<- ItemError) {
	rows, err := db.QueryContext(ctx, query.SQL)
	if err != nil {
		emitErr(ctx, errs, query.Name, fmt.Errorf("query failed: %w", err))
		return
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		emitErr(ctx, errs, query.Name, err)
		return
	}

	idIdx, textIdx := -1, -1
	for i, col := range cols {
		switch col {
		case query.IDColumn:
			idIdx = i
		case query.TextColumn:
			textIdx = i
		}
	}
	if idIdx < 0 || textIdx < 0 {
		emitErr(ctx, errs, query.Name, fmt.Errorf("result has no %q/%q columns", query.IDColumn, query.TextColumn))
		return
	}

	values := make([]any, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if ctx.Err() != nil {
			return
		}
		if err := rows.Scan(scanArgs...); err != nil {
			emitErr(ctx, errs, query.Name, fmt.Errorf("scan failed: %w", err))
			continue
		}

		rowID := fmt.Sprintf("%v", values[idIdx])
		text := fmt.Sprintf("%v", values[textIdx])
		if text == "" || text == "<nil>" {
			emitErr(ctx, errs, fmt.Sprintf("%s/%s", query.Name, rowID), fmt.Errorf("empty text column"))
			continue
		}

		if !emit(ctx, items, Item{
			ID:        fmt.Sprintf("%s/%s", query.Name, rowID),
			Path:      fmt.Sprintf("%s/%s", query.Name, rowID),
			Text:      NormalizeText(text),
			PageCount: 1,
			Meta:      map[string]string{"query": query.Name, "row_id": rowID},
		}) {
			return
		}
	}

	if err := rows.Err(); err != nil {
		emitErr(ctx, errs, query.Name, err)
	}
}
