package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"knowledge-platform/internal/config"
	"knowledge-platform/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func localDirSpec(root string, params models.SourceParams) FetchSpec {
	return FetchSpec{
		TenantID: "t1",
		Source: models.Source{
			Type:     models.SourceTypeLocalDir,
			Location: root,
			Params:   params,
		},
	}
}

func TestLocalDirWalksSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "# Title\n\nSome markdown content.")
	writeFile(t, dir, "notes.txt", "plain text notes")
	writeFile(t, dir, "sub/page.html", "<html><body><p>html paragraph</p></body></html>")
	writeFile(t, dir, "binary.exe", "ignored")
	writeFile(t, dir, ".hidden/secret.txt", "skipped dot dir")

	conn := NewLocalDirConnector(&config.Config{}, nil)
	spec := localDirSpec(dir, models.SourceParams{})

	if err := conn.Validate(context.Background(), spec); err != nil {
		t.Fatalf("validate: %v", err)
	}

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, errs := collectItems(t, itemCh, errCh)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3: %+v", len(items), items)
	}

	byPath := make(map[string]Item)
	for _, item := range items {
		byPath[item.Path] = item
	}
	if _, ok := byPath["readme.md"]; !ok {
		t.Fatal("missing readme.md")
	}
	if item, ok := byPath[filepath.Join("sub", "page.html")]; !ok {
		t.Fatal("missing nested html file")
	} else if item.Text != "html paragraph" {
		t.Fatalf("html text = %q", item.Text)
	}
}

func TestLocalDirIncludeGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "markdown")
	writeFile(t, dir, "b.txt", "text")
	writeFile(t, dir, "c.csv", "col1,col2")

	conn := NewLocalDirConnector(&config.Config{}, nil)
	spec := localDirSpec(dir, models.SourceParams{Include: []string{"*.md"}})

	itemCh, errCh := conn.Fetch(context.Background(), spec)
	items, _ := collectItems(t, itemCh, errCh)
	if len(items) != 1 {
		t.Fatalf("got %d items, want only *.md", len(items))
	}
	if items[0].Path != "a.md" {
		t.Fatalf("item path = %q", items[0].Path)
	}
}

func TestLocalDirValidateRejectsFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f.txt", "x")

	conn := NewLocalDirConnector(&config.Config{}, nil)

	if err := conn.Validate(context.Background(), localDirSpec(filepath.Join(dir, "f.txt"), models.SourceParams{})); err == nil {
		t.Fatal("expected error for file location")
	}
	if err := conn.Validate(context.Background(), localDirSpec(filepath.Join(dir, "missing"), models.SourceParams{})); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLocalDirCancelStopsWalk(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, dir, filepath.Join("d", "f"+string(rune('a'+i%26))+".txt"), "content")
	}

	conn := NewLocalDirConnector(&config.Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	items, errs := conn.Fetch(ctx, localDirSpec(dir, models.SourceParams{}))

	// take one item then walk away
	<-items
	cancel()
	collectItems(t, items, errs)
}
