package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"citrine-sage-backend/models"
)

// fakeEmbedder produces deterministic bag-of-words vectors so similarity
// reflects vocabulary overlap.
type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	vec := make([]float32, 32)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?")))
		vec[h.Sum32()%32]++
	}
	return vec, nil
}

func testDocs() []models.SourceDocument {
	return []models.SourceDocument{
		{SourceID: "biology.pdf", Kind: models.SourcePDF, Text: "Photosynthesis converts sunlight into chemical energy inside chloroplasts."},
		{SourceID: "YouTube (Ec19...)", Kind: models.SourceVideo, Text: "Gravity bends spacetime around massive objects like stars."},
	}
}

func TestIndexerBuildEmptyInputIsDegenerateSuccess(t *testing.T) {
	embedder := &fakeEmbedder{}
	indexer := NewIndexer(NewChunker(1000, 200), embedder, 100000)

	for _, docs := range [][]models.SourceDocument{
		nil,
		{{SourceID: "empty.pdf", Kind: models.SourcePDF, Text: "   "}},
	} {
		index, err := indexer.Build(context.Background(), docs, nil)
		if err != nil {
			t.Fatalf("degenerate build returned error: %v", err)
		}
		if index != nil {
			t.Fatal("degenerate build returned a non-nil index")
		}
	}
	if embedder.calls != 0 {
		t.Errorf("embedding service called %d times for empty input", embedder.calls)
	}
}

func TestIndexerBuildAttachesProvenance(t *testing.T) {
	indexer := NewIndexer(NewChunker(1000, 200), &fakeEmbedder{}, 100000)

	index, err := indexer.Build(context.Background(), testDocs(), nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if index.Len() != 2 {
		t.Fatalf("expected 2 passages, got %d", index.Len())
	}

	for _, p := range index.passages {
		if p.ChunkID == "" {
			t.Error("passage missing chunk id")
		}
		switch p.Metadata.Source {
		case "biology.pdf":
			if p.Metadata.Type != models.SourcePDF {
				t.Errorf("wrong kind for %s: %s", p.Metadata.Source, p.Metadata.Type)
			}
		case "YouTube (Ec19...)":
			if p.Metadata.Type != models.SourceVideo {
				t.Errorf("wrong kind for %s: %s", p.Metadata.Source, p.Metadata.Type)
			}
		default:
			t.Errorf("unexpected provenance: %+v", p.Metadata)
		}
	}
}

func TestIndexerFullContextJoinAndTruncation(t *testing.T) {
	docs := testDocs()

	indexer := NewIndexer(NewChunker(1000, 200), &fakeEmbedder{}, 100000)
	index, err := indexer.Build(context.Background(), docs, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	want := docs[0].Text + "\n\n" + docs[1].Text
	if index.FullContext != want {
		t.Errorf("full context join mismatch: %q", index.FullContext)
	}

	truncating := NewIndexer(NewChunker(1000, 200), &fakeEmbedder{}, 20)
	index, err = truncating.Build(context.Background(), docs, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(index.FullContext) != 20 {
		t.Errorf("full context not truncated: %d chars", len(index.FullContext))
	}
}

func TestIndexerBuildSurfacesEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("quota exhausted")}
	indexer := NewIndexer(NewChunker(1000, 200), embedder, 100000)

	if _, err := indexer.Build(context.Background(), testDocs(), nil); err == nil {
		t.Fatal("expected build to fail when embedding fails")
	}
}

func TestKnowledgeIndexSearchRanking(t *testing.T) {
	embedder := &fakeEmbedder{}
	indexer := NewIndexer(NewChunker(1000, 200), embedder, 100000)

	index, err := indexer.Build(context.Background(), testDocs(), nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	queryVec, _ := embedder.Embed(context.Background(), "how does photosynthesis use sunlight energy")
	results := index.Search(queryVec, 1)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Metadata.Source != "biology.pdf" {
		t.Errorf("expected the photosynthesis passage first, got %s", results[0].Metadata.Source)
	}
}

func TestKnowledgeIndexSearchCapsAtCorpusSize(t *testing.T) {
	embedder := &fakeEmbedder{}
	indexer := NewIndexer(NewChunker(1000, 200), embedder, 100000)

	index, err := indexer.Build(context.Background(), testDocs(), nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	queryVec, _ := embedder.Embed(context.Background(), "anything")
	results := index.Search(queryVec, 6)
	if len(results) != index.Len() {
		t.Errorf("expected all %d passages, got %d", index.Len(), len(results))
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if sim := cosineSimilarity(a, b); sim < 0.999 {
		t.Errorf("identical vectors should have similarity 1, got %f", sim)
	}
	if sim := cosineSimilarity(a, c); sim != 0 {
		t.Errorf("orthogonal vectors should have similarity 0, got %f", sim)
	}
	if sim := cosineSimilarity(a, []float32{}); sim != 0 {
		t.Errorf("mismatched lengths should yield 0, got %f", sim)
	}
	if sim := cosineSimilarity([]float32{0, 0}, []float32{0, 0}); sim != 0 {
		t.Errorf("zero vectors should yield 0, got %f", sim)
	}
}
