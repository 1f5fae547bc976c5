package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"knowledge-platform/models"
)

func collectItems(t *testing.T, items <-chan Item, errs <-chan ItemError) ([]Item, []ItemError) {
	t.Helper()
	var gotItems []Item
	var gotErrs []ItemError
	for items != nil || errs != nil {
		select {
		case item, ok := <-items:
			if !ok {
				items = nil
				continue
			}
			gotItems = append(gotItems, item)
		case ie, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			gotErrs = append(gotErrs, ie)
		}
	}
	return gotItems, gotErrs
}

func apiSpec(endpoint string, params models.SourceParams) FetchSpec {
	params.Endpoint = endpoint
	return FetchSpec{
		TenantID: "t1",
		Source: models.Source{
			Type:     models.SourceTypeAPI,
			Location: endpoint,
			Params:   params,
		},
	}
}

func TestAPIConnectorOffsetPagination(t *testing.T) {
	total := 25
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var records []map[string]any
		for i := offset; i < offset+limit && i < total; i++ {
			records = append(records, map[string]any{
				"id":    fmt.Sprintf("rec-%d", i),
				"title": fmt.Sprintf("Record %d", i),
				"body":  "some body text",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": records})
	}))
	defer server.Close()

	conn := NewAPIConnector()
	spec := apiSpec(server.URL, models.SourceParams{
		Pagination: "offset",
		ItemsField: "items",
		IDField:    "id",
		TextFields: []string{"title", "body"},
		PageSize:   10,
	})
	if err := conn.Validate(context.Background(), spec); err != nil {
		t.Fatalf("validate: %v", err)
	}

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(items) != total {
		t.Fatalf("got %d items, want %d", len(items), total)
	}
	if items[0].ID != "rec-0" {
		t.Fatalf("first item id = %q", items[0].ID)
	}
}

func TestAPIConnectorCursorPagination(t *testing.T) {
	pages := map[string][]map[string]any{
		"": {
			{"id": "a", "text": "alpha"},
			{"id": "b", "text": "beta"},
		},
		"page2": {
			{"id": "c", "text": "gamma"},
		},
	}
	cursors := map[string]string{"": "page2", "page2": ""}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		resp := map[string]any{"items": pages[cursor]}
		if next := cursors[cursor]; next != "" {
			resp["next_cursor"] = next
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	conn := NewAPIConnector()
	spec := apiSpec(server.URL, models.SourceParams{
		Pagination:  "cursor",
		CursorField: "next_cursor",
		ItemsField:  "items",
		IDField:     "id",
		TextFields:  []string{"text"},
	})

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[2].Text != "gamma" {
		t.Fatalf("last item text = %q", items[2].Text)
	}
}

func TestAPIConnectorMaxItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var records []map[string]any
		for i := 0; i < 50; i++ {
			records = append(records, map[string]any{"id": fmt.Sprintf("r%d", i), "text": "x"})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": records})
	}))
	defer server.Close()

	conn := NewAPIConnector()
	spec := apiSpec(server.URL, models.SourceParams{
		ItemsField: "items",
		IDField:    "id",
		TextFields: []string{"text"},
		MaxItems:   7,
	})

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, _ := collectItems(t, itemCh, errCh)
	if len(items) != 7 {
		t.Fatalf("got %d items, want max_items cap of 7", len(items))
	}
}

func TestAPIConnectorRecordErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
			{"id": "good", "text": "content"},
			{"text": "missing id"},
			{"id": "empty"},
		}})
	}))
	defer server.Close()

	conn := NewAPIConnector()
	spec := apiSpec(server.URL, models.SourceParams{
		ItemsField: "items",
		IDField:    "id",
		TextFields: []string{"text"},
	})

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
}

func TestAPIConnectorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	conn := NewAPIConnector()
	spec := apiSpec(server.URL, models.SourceParams{
		ItemsField: "items",
		IDField:    "id",
		TextFields: []string{"text"},
	})

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(items) != 0 {
		t.Fatalf("got %d items, want 0", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
}

func TestAPIConnectorValidate(t *testing.T) {
	conn := NewAPIConnector()

	bad := []models.SourceParams{
		{Pagination: "scroll", IDField: "id", TextFields: []string{"t"}},
		{Pagination: "cursor", IDField: "id", TextFields: []string{"t"}}, // no cursor_field
		{IDField: "", TextFields: []string{"t"}},
		{IDField: "id"},
	}
	for i, params := range bad {
		if err := conn.Validate(context.Background(), apiSpec("http://example.com/api", params)); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}

	if err := conn.Validate(context.Background(), apiSpec("not a url", models.SourceParams{
		IDField: "id", TextFields: []string{"t"},
	})); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}
