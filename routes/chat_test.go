package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"citrine-sage-backend/models"
	"citrine-sage-backend/services"
)

type stubModel struct {
	fragments []string
}

func (s *stubModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (s *stubModel) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	return strings.Join(s.fragments, ""), nil
}

func (s *stubModel) GenerateStream(ctx context.Context, prompt string, temperature float32, emit func(string) error) error {
	for _, fr := range s.fragments {
		if err := emit(fr); err != nil {
			return err
		}
	}
	return nil
}

func newChatRouter(t *testing.T, model *stubModel, docs []models.SourceDocument) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rag := services.NewRAGService(model, 4)
	if docs != nil {
		index, err := services.NewIndexer(services.NewChunker(1000, 200), model, 100000).Build(context.Background(), docs, nil)
		if err != nil {
			t.Fatalf("failed to build index: %v", err)
		}
		rag.Publish(index)
	}

	router := gin.New()
	SetupChatRoutes(router, rag)
	return router
}

func postChat(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatStreamsAnswerThenSourcesDelimiter(t *testing.T) {
	longText := strings.Repeat("Photosynthesis converts sunlight into chemical energy. ", 10)
	router := newChatRouter(t,
		&stubModel{fragments: []string{"Plants ", "use ", "sunlight."}},
		[]models.SourceDocument{{SourceID: "biology.pdf", Kind: models.SourcePDF, Text: longText}},
	)

	w := postChat(router, `{"question": "how do plants get energy?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}

	answer, payload, found := strings.Cut(w.Body.String(), "\n__SOURCES__:")
	if !found {
		t.Fatalf("response missing sources delimiter: %q", w.Body.String())
	}
	if answer != "Plants use sunlight." {
		t.Errorf("unexpected answer text: %q", answer)
	}

	var refs []models.SourceRef
	if err := json.Unmarshal([]byte(payload), &refs); err != nil {
		t.Fatalf("sources payload is not valid JSON: %v", err)
	}
	if len(refs) == 0 {
		t.Fatal("no source refs in payload")
	}
	for _, ref := range refs {
		if ref.Metadata.Source != "biology.pdf" || ref.Metadata.Type != models.SourcePDF {
			t.Errorf("unexpected ref metadata: %+v", ref.Metadata)
		}
		if len(ref.Content) > 203 {
			t.Errorf("source preview not truncated: %d chars", len(ref.Content))
		}
	}
}

func TestChatRejectsMissingQuestion(t *testing.T) {
	router := newChatRouter(t, &stubModel{}, nil)

	for _, body := range []string{`{}`, `{"question": ""}`, `not json`} {
		w := postChat(router, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestChatBeforeFirstIngestionHasNoSources(t *testing.T) {
	router := newChatRouter(t, &stubModel{}, nil)

	w := postChat(router, `{"question": "anything"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	body := w.Body.String()
	if body != "System is not initialized or has no data." {
		t.Errorf("unexpected body: %q", body)
	}
	if strings.Contains(body, "__SOURCES__") {
		t.Error("unready answer must not carry a sources delimiter")
	}
}
