package services

import (
	"strings"
)

// defaultSeparators are tried in order: paragraph breaks first, then line
// breaks, sentence ends, and word boundaries, before a hard cut.
var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits text into overlapping passages, preferring to break at
// natural boundaries before falling back to a hard character cut.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Chunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split breaks text into chunks of at most chunkSize characters with
// roughly overlap characters shared between consecutive chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	raw := c.split(text, c.separators)

	chunks := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

func (c *Chunker) split(text string, seps []string) []string {
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	sep := ""
	var rest []string
	for i, s := range seps {
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	if sep == "" {
		return c.hardCut(text)
	}

	// SplitAfter keeps each separator attached to its piece, so merged
	// chunks reproduce the original text.
	var units []string
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if len(piece) > c.chunkSize {
			units = append(units, c.split(piece, rest)...)
		} else {
			units = append(units, piece)
		}
	}

	return c.merge(units)
}

// hardCut is the last resort: fixed-size cuts with character overlap.
func (c *Chunker) hardCut(text string) []string {
	step := c.chunkSize - c.overlap
	if step <= 0 {
		step = c.chunkSize
	}

	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

// merge greedily packs units into chunks of at most chunkSize, carrying
// the trailing units that fit within overlap into the next chunk.
func (c *Chunker) merge(units []string) []string {
	totalLen := func(parts []string) int {
		n := 0
		for _, p := range parts {
			n += len(p)
		}
		return n
	}

	var chunks []string
	var cur []string

	for _, u := range units {
		if len(cur) > 0 && totalLen(cur)+len(u) > c.chunkSize {
			chunks = append(chunks, strings.Join(cur, ""))
			for len(cur) > 0 && (totalLen(cur) > c.overlap || totalLen(cur)+len(u) > c.chunkSize) {
				cur = cur[1:]
			}
		}
		cur = append(cur, u)
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, ""))
	}
	return chunks
}
