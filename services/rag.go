package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"citrine-sage-backend/internal/logger"
	"citrine-sage-backend/models"
)

// LanguageModel is the generative side of the RAG pipeline.
type LanguageModel interface {
	Embedder
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
	GenerateStream(ctx context.Context, prompt string, temperature float32, emit func(fragment string) error) error
}

// ErrNotInitialized is returned when a query arrives before any
// successful ingestion has published an index.
var ErrNotInitialized = errors.New("knowledge index not initialized")

const (
	notInitializedAnswer = "System is not initialized or has no data."
	noContentAnswer      = "No content to summarize."

	// Deterministic answers for QA, room for variety in dialogue.
	qaTemperature       = 0.0
	dialogueTemperature = 0.7

	// Whole-corpus prompts are bounded to a safe prefix.
	summaryContextChars = 50000
)

const answerTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
Use the style of a helpful tutor.

Context: %s

Question: %s

Helpful Answer:`

const summaryTemplate = `Summarize the following content in a detailed and educational way:

%s`

const dialogueTemplate = `Based on the following source material, create an engaging and educational dialogue between a curious STUDENT and a knowledgeable TEACHER.

INSTRUCTIONS:
1. Scale the length of the dialogue based on the amount of content provided.
   - If content is brief, keep the dialogue short and concise.
   - If content is extensive, create a comprehensive "Deep Dive" discussion covering all key themes.
2. The goal is to explain the key concepts found in the context clearly.
3. Use natural conversational fillers (e.g., "Hmm", "I see", "That makes sense").

Source Material: %s

Output strictly a valid JSON list of objects, where each object has "speaker" (Teacher/Student) and "text".
Example:
[
    {"speaker": "Student", "text": "I've heard about this topic, but what does it really mean?"},
    {"speaker": "Teacher", "text": "Great question! Essentially, it refers to..."}
]`

// StreamEvent is one element of a streamed answer: text fragments in
// generation order, then exactly one final event carrying the sources.
type StreamEvent struct {
	Text    string
	Sources []models.Passage
	Final   bool
}

// RAGService owns the live knowledge index and answers questions against
// it. The index pointer is swapped atomically on publish; readers never
// see a partially-built index.
type RAGService struct {
	model LanguageModel
	topK  int

	mu    sync.RWMutex
	index *KnowledgeIndex
}

func NewRAGService(model LanguageModel, topK int) *RAGService {
	if topK <= 0 {
		topK = 6
	}
	return &RAGService{
		model: model,
		topK:  topK,
	}
}

// Publish swaps in a freshly built index. Only the ingestion worker
// calls this.
func (s *RAGService) Publish(index *KnowledgeIndex) {
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
}

// Index returns the currently live index, or nil before the first
// successful build.
func (s *RAGService) Index() *KnowledgeIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Retrieve returns the top-k passages most similar to the query.
func (s *RAGService) Retrieve(ctx context.Context, query string) ([]models.Passage, error) {
	index := s.Index()
	if index == nil {
		return nil, ErrNotInitialized
	}

	queryVec, err := s.model.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return index.Search(queryVec, s.topK), nil
}

// Query answers a question in whole-answer mode, returning the answer
// together with the passages it was conditioned on. A missing index is a
// structured "not ready" answer, not an error.
func (s *RAGService) Query(ctx context.Context, question string) (*models.Answer, error) {
	passages, err := s.Retrieve(ctx, question)
	if err != nil {
		if errors.Is(err, ErrNotInitialized) {
			return &models.Answer{Answer: notInitializedAnswer}, nil
		}
		return nil, err
	}

	prompt := fmt.Sprintf(answerTemplate, joinPassages(passages), question)

	answer, err := s.model.Generate(ctx, prompt, qaTemperature)
	if err != nil {
		return nil, err
	}

	return &models.Answer{Answer: answer, Sources: passages}, nil
}

// StreamAnswer answers a question in streaming mode. The returned channel
// yields zero or more text events followed by exactly one final event
// carrying the retrieved passages, then closes. Cancelling ctx stops
// further fragments.
func (s *RAGService) StreamAnswer(ctx context.Context, question string) <-chan StreamEvent {
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		passages, err := s.Retrieve(ctx, question)
		if err != nil {
			if errors.Is(err, ErrNotInitialized) {
				if send(StreamEvent{Text: notInitializedAnswer}) {
					send(StreamEvent{Final: true})
				}
				return
			}
			logger.Error("Retrieval failed", "error", err)
			if send(StreamEvent{Text: fmt.Sprintf("Error: %v", err)}) {
				send(StreamEvent{Final: true})
			}
			return
		}

		prompt := fmt.Sprintf(answerTemplate, joinPassages(passages), question)

		err = s.model.GenerateStream(ctx, prompt, qaTemperature, func(fragment string) error {
			if !send(StreamEvent{Text: fragment}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("Streaming generation failed", "error", err)
			if !send(StreamEvent{Text: fmt.Sprintf("Error: %v", err)}) {
				return
			}
		}

		// Sources always come last; the consuming boundary depends on
		// this ordering for rendering.
		send(StreamEvent{Sources: passages, Final: true})
	}()

	return out
}

// Summary produces a whole-corpus summary. The lexical context path
// bypasses retrieval; on its failure the retrieval pipeline is the
// secondary attempt. With nothing ingested at all, no model is called.
func (s *RAGService) Summary(ctx context.Context) string {
	index := s.Index()
	if index == nil {
		return noContentAnswer
	}

	if index.FullContext != "" {
		summary, err := s.model.Generate(ctx, fmt.Sprintf(summaryTemplate, prefix(index.FullContext, summaryContextChars)), qaTemperature)
		if err == nil {
			return summary
		}
		logger.Warn("Direct summary failed, falling back to retrieval", "error", err)

		if answer, err := s.Query(ctx, "Summarize main concepts"); err == nil {
			return answer.Answer
		}
		return noContentAnswer
	}

	answer, err := s.Query(ctx, "Provide a detailed summary of the main concepts discussed in the provided text and videos.")
	if err != nil {
		logger.Error("Summary query failed", "error", err)
		return noContentAnswer
	}
	return answer.Answer
}

// DialogueScript generates a Teacher/Student dialogue over the whole
// corpus. Speech synthesis of the script is out of scope here.
func (s *RAGService) DialogueScript(ctx context.Context) ([]models.DialogueLine, error) {
	index := s.Index()
	if index == nil {
		return nil, ErrNotInitialized
	}

	source := index.FullContext
	if source == "" {
		source = s.Summary(ctx)
	}

	raw, err := s.model.Generate(ctx, fmt.Sprintf(dialogueTemplate, prefix(source, summaryContextChars)), dialogueTemperature)
	if err != nil {
		return nil, fmt.Errorf("dialogue generation failed: %w", err)
	}

	return parseDialogue(raw)
}

// parseDialogue accepts either a bare JSON list or a {"dialogue": [...]}
// wrapper, with or without fenced code blocks around it.
func parseDialogue(raw string) ([]models.DialogueLine, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var lines []models.DialogueLine
	if err := json.Unmarshal([]byte(raw), &lines); err == nil {
		return lines, nil
	}

	var wrapped struct {
		Dialogue []models.DialogueLine `json:"dialogue"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Dialogue != nil {
		return wrapped.Dialogue, nil
	}

	return nil, fmt.Errorf("model returned unparseable dialogue script")
}

func joinPassages(passages []models.Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, "\n\n")
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
