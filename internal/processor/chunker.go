package processor

import (
	"regexp"
	"strings"
)

// Piece is one chunk of a document before embedding. Index values are
// contiguous and zero-based; StartRune/EndRune locate the piece's own
// content in the source text (overlap carried from the previous piece is
// not counted).
type Piece struct {
	Index     int
	Text      string
	StartRune int
	EndRune   int
}

// Chunker splits normalized text into overlapping pieces, preferring
// paragraph and sentence boundaries. All sizes are in runes so multi-byte
// text never splits mid-character.
type Chunker struct {
	maxChunkSize   int
	overlap        int
	minChunkSize   int
	sentenceRegex  *regexp.Regexp
	paragraphRegex *regexp.Regexp
}

func NewChunker(maxChunkSize, overlap, minChunkSize int) *Chunker {
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}
	return &Chunker{
		maxChunkSize:   maxChunkSize,
		overlap:        overlap,
		minChunkSize:   minChunkSize,
		sentenceRegex:  regexp.MustCompile(`[.!?]+\s+`),
		paragraphRegex: regexp.MustCompile(`\n\n+`),
	}
}

type paragraph struct {
	text  string
	start int // rune offset in source text
}

// Chunk splits text into pieces. Empty input yields no pieces; input
// shorter than the max size yields exactly one.
func (c *Chunker) Chunk(text string) []Piece {
	paragraphs := c.splitParagraphs(text)
	paragraphs = c.splitOversized(paragraphs)
	if len(paragraphs) == 0 {
		return nil
	}

	var pieces []Piece
	var current strings.Builder
	currentRunes := 0
	pieceStart := paragraphs[0].start
	pieceEnd := paragraphs[0].start
	overlapRunes := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		pieces = append(pieces, Piece{
			Index:     len(pieces),
			Text:      current.String(),
			StartRune: pieceStart,
			EndRune:   pieceEnd,
		})
		current.Reset()
		currentRunes = 0
		overlapRunes = 0
	}

	for _, para := range paragraphs {
		paraRunes := len([]rune(para.text))

		if currentRunes+paraRunes > c.maxChunkSize && currentRunes-overlapRunes >= c.minChunkSize {
			prev := current.String()
			flush()

			// seed the next piece with trailing sentences of the last one
			if c.overlap > 0 {
				tail := c.overlapTail(prev)
				if tail != "" {
					current.WriteString(tail)
					overlapRunes = len([]rune(tail))
					currentRunes = overlapRunes
				}
			}
			pieceStart = para.start
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
			currentRunes += 2
		} else if currentRunes == 0 {
			pieceStart = para.start
		}
		current.WriteString(para.text)
		currentRunes += paraRunes
		pieceEnd = para.start + paraRunes
	}

	flush()
	return pieces
}

// splitParagraphs splits on blank lines, keeping each paragraph's rune
// offset in the source.
func (c *Chunker) splitParagraphs(text string) []paragraph {
	var out []paragraph
	locs := c.paragraphRegex.FindAllStringIndex(text, -1)

	byteStart := 0
	runeStart := 0
	appendPara := func(byteEnd int) {
		segment := text[byteStart:byteEnd]
		trimmed := strings.TrimSpace(segment)
		if trimmed != "" {
			leading := len([]rune(segment[:strings.Index(segment, trimmed)]))
			out = append(out, paragraph{text: trimmed, start: runeStart + leading})
		}
		runeStart += len([]rune(segment))
	}

	for _, loc := range locs {
		appendPara(loc[0])
		runeStart += len([]rune(text[loc[0]:loc[1]]))
		byteStart = loc[1]
	}
	appendPara(len(text))
	return out
}

// splitOversized hard-splits any single paragraph longer than the max
// chunk size so every piece fits the embedding input limit.
func (c *Chunker) splitOversized(paragraphs []paragraph) []paragraph {
	var out []paragraph
	for _, para := range paragraphs {
		runes := []rune(para.text)
		if len(runes) <= c.maxChunkSize {
			out = append(out, para)
			continue
		}
		for off := 0; off < len(runes); off += c.maxChunkSize {
			end := off + c.maxChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, paragraph{
				text:  string(runes[off:end]),
				start: para.start + off,
			})
		}
	}
	return out
}

// overlapTail returns up to overlap runes from the end of text, preferring
// to start at a sentence boundary.
func (c *Chunker) overlapTail(text string) string {
	runes := []rune(text)
	if len(runes) <= c.overlap {
		return text
	}
	window := string(runes[len(runes)-c.overlap:])

	// drop the partial leading sentence if the window has a boundary
	if loc := c.sentenceRegex.FindStringIndex(window); loc != nil {
		rest := window[loc[1]:]
		if strings.TrimSpace(rest) != "" {
			return rest
		}
	}
	return window
}
