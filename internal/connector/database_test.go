package connector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"knowledge-platform/models"
)

// rowfake is an in-process database/sql driver scripted per statement text.
type rowResult struct {
	cols []string
	rows [][]driver.Value
	err  error
}

var rowfakeResults = map[string]rowResult{}

type rowfakeDriver struct{}

func (rowfakeDriver) Open(string) (driver.Conn, error) { return &rowfakeConn{}, nil }

type rowfakeConn struct{}

func (*rowfakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (*rowfakeConn) Close() error              { return nil }
func (*rowfakeConn) Begin() (driver.Tx, error) { return nil, errors.New("tx not supported") }

func (*rowfakeConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	res, ok := rowfakeResults[query]
	if !ok {
		return nil, fmt.Errorf("unscripted statement %q", query)
	}
	if res.err != nil {
		return nil, res.err
	}
	return &rowfakeRows{cols: res.cols, rows: res.rows}, nil
}

type rowfakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *rowfakeRows) Columns() []string { return r.cols }
func (r *rowfakeRows) Close() error      { return nil }
func (r *rowfakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func init() {
	sql.Register("rowfake", rowfakeDriver{})
}

func databaseSpec(queries []models.SourceQuery) FetchSpec {
	return FetchSpec{
		TenantID: "t1",
		Source: models.Source{
			Type:     models.SourceTypeDatabase,
			Location: "rowfake://warehouse",
			Params:   models.SourceParams{Queries: queries},
		},
	}
}

func textQuery(name, stmt string) models.SourceQuery {
	return models.SourceQuery{Name: name, SQL: stmt, IDColumn: "id", TextColumn: "body"}
}

func TestDatabaseConnectorPartialQueryFailure(t *testing.T) {
	rowfakeResults = map[string]rowResult{
		"SELECT 1": {cols: []string{"id", "body"}, rows: [][]driver.Value{{int64(1), "first article body"}}},
		"SELECT 2": {err: errors.New("relation does not exist")},
		"SELECT 3": {cols: []string{"id", "body"}, rows: [][]driver.Value{{int64(7), "second article body"}}},
		"SELECT 4": {err: errors.New("permission denied")},
		"SELECT 5": {cols: []string{"id", "body"}, rows: [][]driver.Value{{int64(9), "third article body"}}},
	}

	conn := &DatabaseConnector{driverName: "rowfake"}
	spec := databaseSpec([]models.SourceQuery{
		textQuery("articles", "SELECT 1"),
		textQuery("missing", "SELECT 2"),
		textQuery("posts", "SELECT 3"),
		textQuery("locked", "SELECT 4"),
		textQuery("notes", "SELECT 5"),
	})

	if err := conn.Validate(context.Background(), spec); err != nil {
		t.Fatalf("validate: %v", err)
	}

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(items) != 3 {
		t.Fatalf("expected 3 rows ingested, got %d", len(items))
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 query errors, got %d: %v", len(errs), errs)
	}

	if items[0].ID != "articles/1" || items[1].ID != "posts/7" || items[2].ID != "notes/9" {
		t.Fatalf("unexpected item ids: %q %q %q", items[0].ID, items[1].ID, items[2].ID)
	}
	for _, item := range items {
		if !strings.Contains(item.Text, "article body") {
			t.Fatalf("row text not mapped from text column: %q", item.Text)
		}
	}

	failed := map[string]bool{}
	for _, e := range errs {
		failed[e.ItemID] = true
	}
	if !failed["missing"] || !failed["locked"] {
		t.Fatalf("errors not attributed to the failing queries: %v", errs)
	}
}

func TestDatabaseConnectorEmptyTextRow(t *testing.T) {
	rowfakeResults = map[string]rowResult{
		"SELECT rows": {cols: []string{"id", "body"}, rows: [][]driver.Value{
			{int64(1), "a real body"},
			{int64(2), nil},
		}},
	}

	conn := &DatabaseConnector{driverName: "rowfake"}
	spec := databaseSpec([]models.SourceQuery{textQuery("articles", "SELECT rows")})

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for the null text row, got %d", len(errs))
	}
	if errs[0].ItemID != "articles/2" {
		t.Fatalf("error not attributed to the row: %q", errs[0].ItemID)
	}
}

func TestDatabaseConnectorMissingColumns(t *testing.T) {
	rowfakeResults = map[string]rowResult{
		"SELECT cols": {cols: []string{"pk", "content"}, rows: [][]driver.Value{{int64(1), "text"}}},
	}

	conn := &DatabaseConnector{driverName: "rowfake"}
	spec := databaseSpec([]models.SourceQuery{textQuery("articles", "SELECT cols")})

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 column-mapping error, got %d", len(errs))
	}
}

func TestDatabaseConnectorValidate(t *testing.T) {
	conn := NewDatabaseConnector()

	if err := conn.Validate(context.Background(), databaseSpec(nil)); err == nil {
		t.Fatal("expected error for source without queries")
	}

	spec := databaseSpec([]models.SourceQuery{{Name: "broken", SQL: "SELECT 1"}})
	if err := conn.Validate(context.Background(), spec); err == nil {
		t.Fatal("expected error for query without column mapping")
	}

	spec = databaseSpec([]models.SourceQuery{textQuery("ok", "SELECT 1")})
	spec.Source.Location = ""
	if err := conn.Validate(context.Background(), spec); err == nil {
		t.Fatal("expected error for source without DSN")
	}
}
