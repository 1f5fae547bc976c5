package jobs

import (
	"context"
	"strings"
	"testing"
)

func TestMemoryLogOffsetReconstruction(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	lines := []string{"job started", "item a ingested", "item b failed: boom", "job succeeded"}
	for _, line := range lines {
		if err := log.Append(ctx, "job1", line); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// read the whole log in small slices and reassemble
	var rebuilt strings.Builder
	offset := int64(0)
	for {
		content, next, err := log.Read(ctx, "job1", offset, 16)
		if err != nil {
			t.Fatalf("read at %d: %v", offset, err)
		}
		if content == "" {
			break
		}
		if next != offset+int64(len(content)) {
			t.Fatalf("next offset = %d, want %d", next, offset+int64(len(content)))
		}
		rebuilt.WriteString(content)
		offset = next
	}

	full, _, err := log.Read(ctx, "job1", 0, 0)
	if err != nil {
		t.Fatalf("full read: %v", err)
	}
	if rebuilt.String() != full {
		t.Fatal("sliced reads did not reconstruct the full log")
	}
	for _, line := range lines {
		if !strings.Contains(full, line) {
			t.Fatalf("log missing line %q", line)
		}
	}
}

func TestMemoryLogReadPastEnd(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	if err := log.Append(ctx, "job1", "only line"); err != nil {
		t.Fatalf("append: %v", err)
	}

	length, err := log.Length(ctx, "job1")
	if err != nil {
		t.Fatalf("length: %v", err)
	}

	content, next, err := log.Read(ctx, "job1", length+100, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if content != "" {
		t.Fatalf("expected empty content past end, got %q", content)
	}
	if next != length+100 {
		t.Fatalf("next offset should echo the request, got %d", next)
	}
}

func TestMemoryLogNegativeOffset(t *testing.T) {
	log := NewMemoryLog()
	if _, _, err := log.Read(context.Background(), "job1", -1, 0); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

func TestMemoryLogUnknownJobIsEmpty(t *testing.T) {
	log := NewMemoryLog()
	content, next, err := log.Read(context.Background(), "nope", 0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if content != "" || next != 0 {
		t.Fatalf("unknown job should read empty, got %q next=%d", content, next)
	}
}
