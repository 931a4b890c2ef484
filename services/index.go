package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"citrine-sage-backend/internal/logger"
	"citrine-sage-backend/models"
)

// Embedder computes a fixed-length vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeIndex is the queryable structure: passages plus a similarity
// search structure over their embeddings, plus the concatenated lexical
// context used by whole-corpus operations. Indexes are immutable once
// built; a rebuild replaces the pointer, never mutates in place.
type KnowledgeIndex struct {
	passages    []models.Passage
	vectors     [][]float32
	FullContext string
}

// Len returns the number of indexed passages.
func (ki *KnowledgeIndex) Len() int {
	return len(ki.passages)
}

// Search returns the k passages most similar to the query vector, ranked
// by cosine similarity descending.
func (ki *KnowledgeIndex) Search(queryVec []float32, k int) []models.Passage {
	type scored struct {
		idx   int
		score float64
	}

	scores := make([]scored, len(ki.vectors))
	for i, vec := range ki.vectors {
		scores[i] = scored{idx: i, score: cosineSimilarity(queryVec, vec)}
	}

	sort.Slice(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]models.Passage, 0, k)
	for _, s := range scores[:k] {
		results = append(results, ki.passages[s.idx])
	}
	return results
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Indexer builds a KnowledgeIndex from a batch of source documents.
type Indexer struct {
	chunker         *Chunker
	embedder        Embedder
	maxContextChars int
}

func NewIndexer(chunker *Chunker, embedder Embedder, maxContextChars int) *Indexer {
	if maxContextChars <= 0 {
		maxContextChars = 100000
	}
	return &Indexer{
		chunker:         chunker,
		embedder:        embedder,
		maxContextChars: maxContextChars,
	}
}

// Build chunks every non-empty document, embeds each passage and
// assembles the similarity index. Zero non-empty passages is a degenerate
// success: Build returns (nil, nil) and the caller decides what to do
// with the previously-live index.
func (ix *Indexer) Build(ctx context.Context, docs []models.SourceDocument, progress ProgressFunc) (*KnowledgeIndex, error) {
	var passages []models.Passage
	var texts []string

	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		texts = append(texts, doc.Text)

		for _, chunk := range ix.chunker.Split(doc.Text) {
			passages = append(passages, models.Passage{
				ChunkID: uuid.NewString(),
				Content: chunk,
				Metadata: models.PassageMetadata{
					Source: doc.SourceID,
					Type:   doc.Kind,
				},
			})
		}
	}

	if len(passages) == 0 {
		logger.Info("No text chunks created")
		return nil, nil
	}

	// Whole-corpus context for summary and dialogue generation, bounded
	// to stay within downstream model context limits.
	fullContext := strings.Join(texts, "\n\n")
	if len(fullContext) > ix.maxContextChars {
		fullContext = fullContext[:ix.maxContextChars]
	}

	progress.notify("Creating vector store index...")

	vectors := make([][]float32, len(passages))
	for i, p := range passages {
		vec, err := ix.embedder.Embed(ctx, p.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to embed passage %d/%d: %w", i+1, len(passages), err)
		}
		vectors[i] = vec
	}

	logger.Info("Knowledge index built", "passages", len(passages), "context_chars", len(fullContext))

	return &KnowledgeIndex{
		passages:    passages,
		vectors:     vectors,
		FullContext: fullContext,
	}, nil
}
