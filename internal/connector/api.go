package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"knowledge-platform/models"
)

const defaultAPIPageSize = 100

// APIConnector pulls records from a paginated JSON REST endpoint. Each
// record becomes one content unit; the configured text fields are joined
// into the unit's text.
type APIConnector struct {
	httpClient *http.Client
}

func NewAPIConnector() *APIConnector {
	return &APIConnector{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *APIConnector) Type() string { return models.SourceTypeAPI }

func (c *APIConnector) Validate(_ context.Context, spec FetchSpec) error {
	endpoint := spec.Source.Params.Endpoint
	if endpoint == "" {
		endpoint = spec.Source.Location
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return fmt.Errorf("invalid api endpoint: %w", err)
	}
	p := spec.Source.Params
	switch p.Pagination {
	case "", "cursor", "offset":
	default:
		return fmt.Errorf("unknown pagination mode %q", p.Pagination)
	}
	if p.Pagination == "cursor" && p.CursorField == "" {
		return fmt.Errorf("cursor pagination needs cursor_field")
	}
	if p.IDField == "" {
		return fmt.Errorf("api source needs id_field")
	}
	if len(p.TextFields) == 0 {
		return fmt.Errorf("api source needs text_fields")
	}
	return nil
}

func (c *APIConnector) Fetch(ctx context.Context, spec FetchSpec) (<-chan Item, <-chan ItemError) {
	items := make(chan Item)
	errs := make(chan ItemError)

	go func() {
		defer close(items)
		defer close(errs)
		c.paginate(ctx, spec, items, errs)
	}()

	return items, errs
}

func (c *APIConnector) paginate(ctx context.Context, spec FetchSpec, items chan<- Item, errs chan<- ItemError) {
	p := spec.Source.Params
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = spec.Source.Location
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = defaultAPIPageSize
	}

	emitted := 0
	offset := 0
	cursor := ""

	for {
		if ctx.Err() != nil {
			return
		}

		pageURL, err := c.pageURL(endpoint, p.Pagination, pageSize, offset, cursor)
		if err != nil {
			emitErr(ctx, errs, endpoint, err)
			return
		}

		page, err := c.fetchPage(ctx, pageURL, spec.Credentials)
		if err != nil {
			emitErr(ctx, errs, pageURL, err)
			return
		}

		records, err := extractRecords(page, p.ItemsField)
		if err != nil {
			emitErr(ctx, errs, pageURL, err)
			return
		}
		if len(records) == 0 {
			return
		}

		for _, rec := range records {
			if p.MaxItems > 0 && emitted >= p.MaxItems {
				return
			}
			id := stringField(rec, p.IDField)
			if id == "" {
				emitErr(ctx, errs, pageURL, fmt.Errorf("record missing %q", p.IDField))
				continue
			}
			text := joinTextFields(rec, p.TextFields)
			if text == "" {
				emitErr(ctx, errs, id, fmt.Errorf("record has no text in %v", p.TextFields))
				continue
			}
			if !emit(ctx, items, Item{
				ID:        id,
				Path:      spec.Source.Location + "#" + id,
				Text:      NormalizeText(text),
				PageCount: 1,
			}) {
				return
			}
			emitted++
		}

		switch p.Pagination {
		case "cursor":
			next := stringField(page, p.CursorField)
			if next == "" || next == cursor {
				return
			}
			cursor = next
		case "offset":
			if len(records) < pageSize {
				return
			}
			offset += len(records)
		default:
			return // single page
		}
	}
}

func (c *APIConnector) pageURL(endpoint, mode string, pageSize, offset int, cursor string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	switch mode {
	case "cursor":
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
	case "offset":
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *APIConnector) fetchPage(ctx context.Context, pageURL, credential string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, err
	}

	var page map[string]any
	if err := json.Unmarshal(body, &page); err != nil {
		// Some APIs return a bare array at the top level.
		var list []any
		if err2 := json.Unmarshal(body, &list); err2 == nil {
			return map[string]any{"items": list}, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return page, nil
}

// extractRecords pulls the record array out of a page. itemsField may be a
// dotted path; empty means "items".
func extractRecords(page map[string]any, itemsField string) ([]map[string]any, error) {
	if itemsField == "" {
		itemsField = "items"
	}
	var node any = page
	for _, part := range strings.Split(itemsField, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("items field %q not found", itemsField)
		}
		node = m[part]
	}
	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("items field %q is not an array", itemsField)
	}
	records := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if rec, ok := el.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func stringField(rec map[string]any, field string) string {
	var node any = rec
	for _, part := range strings.Split(field, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return ""
		}
		node = m[part]
	}
	switch v := node.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinTextFields(rec map[string]any, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := stringField(rec, f); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n\n")
}
