package processor

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkEmptyText(t *testing.T) {
	c := NewChunker(1000, 200, 100)
	if pieces := c.Chunk(""); len(pieces) != 0 {
		t.Fatalf("expected no pieces, got %d", len(pieces))
	}
	if pieces := c.Chunk("   \n\n  "); len(pieces) != 0 {
		t.Fatalf("expected no pieces for whitespace, got %d", len(pieces))
	}
}

func TestChunkShortTextSinglePiece(t *testing.T) {
	c := NewChunker(1000, 200, 100)
	pieces := c.Chunk("A short paragraph about nothing in particular.")
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].Index != 0 {
		t.Fatalf("expected index 0, got %d", pieces[0].Index)
	}
	if pieces[0].StartRune != 0 {
		t.Fatalf("expected start rune 0, got %d", pieces[0].StartRune)
	}
}

func TestChunkIndicesContiguous(t *testing.T) {
	c := NewChunker(200, 50, 50)

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("This paragraph repeats to force the text across several chunks. ")
		sb.WriteString("It has enough words that each block fills a chunk.\n\n")
	}

	pieces := c.Chunk(sb.String())
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i, piece := range pieces {
		if piece.Index != i {
			t.Fatalf("piece %d has index %d, want %d", i, piece.Index, i)
		}
		if piece.Text == "" {
			t.Fatalf("piece %d is empty", i)
		}
	}
}

func TestChunkRuneBoundaries(t *testing.T) {
	c := NewChunker(50, 10, 10)

	// multi-byte runes must never be split
	text := strings.Repeat("日本語のテキストです。", 30)
	pieces := c.Chunk(text)
	if len(pieces) == 0 {
		t.Fatal("expected pieces")
	}
	for i, piece := range pieces {
		if !utf8.ValidString(piece.Text) {
			t.Fatalf("piece %d split a multi-byte rune: %q", i, piece.Text)
		}
	}
}

func TestChunkOversizedParagraphSplit(t *testing.T) {
	c := NewChunker(100, 20, 20)

	text := strings.Repeat("word ", 200) // one huge paragraph
	pieces := c.Chunk(text)
	if len(pieces) < 2 {
		t.Fatalf("expected hard split, got %d pieces", len(pieces))
	}
	for i, piece := range pieces {
		if n := len([]rune(piece.Text)); n > 100+20+2 {
			t.Fatalf("piece %d has %d runes, exceeds the max size", i, n)
		}
	}
}

func TestChunkOverlapCarriesTail(t *testing.T) {
	c := NewChunker(120, 40, 30)

	text := "First sentence ends here. Second sentence follows along.\n\n" +
		"Third paragraph adds more words to push past the max size. " +
		"Fourth sentence keeps going with filler.\n\n" +
		"Fifth paragraph closes the document with a final thought."

	pieces := c.Chunk(text)
	if len(pieces) < 2 {
		t.Fatalf("expected overlap to apply across %d pieces", len(pieces))
	}

	// the second piece should open with text already seen in the first
	first, second := pieces[0].Text, pieces[1].Text
	head := second
	if idx := strings.Index(second, "\n\n"); idx > 0 {
		head = second[:idx]
	}
	if !strings.Contains(first, strings.TrimSpace(head)) {
		t.Fatalf("expected piece 2 to start with overlap from piece 1\nfirst: %q\nsecond head: %q", first, head)
	}
}

func TestChunkStartRuneOffsets(t *testing.T) {
	c := NewChunker(1000, 0, 10)

	text := "alpha\n\nbeta\n\ngamma"
	pieces := c.Chunk(text)
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].StartRune != 0 {
		t.Fatalf("start rune = %d, want 0", pieces[0].StartRune)
	}
	if pieces[0].EndRune != len([]rune(text)) {
		t.Fatalf("end rune = %d, want %d", pieces[0].EndRune, len([]rune(text)))
	}
}
