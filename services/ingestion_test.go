package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"citrine-sage-backend/internal/config"
	"citrine-sage-backend/models"
)

type orchFixture struct {
	orch    *Orchestrator
	rag     *RAGService
	model   *fakeModel
	pdfPath string
}

// newOrchestratorFixture wires an Orchestrator around a fake document
// containing one digital page. A non-nil gate blocks document opening
// until the gate is closed, which lets tests hold a job mid-flight.
func newOrchestratorFixture(t *testing.T, gate chan struct{}) *orchFixture {
	t.Helper()

	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "lecture.pdf")
	writeFileWithMtime(t, pdfPath, "pdf-bytes", time.Now().Add(-time.Minute))

	doc := &fakeDoc{pages: []*fakePage{{
		text: "Photosynthesis converts sunlight into chemical energy inside chloroplasts of plants.",
	}}}
	opener := func(path string) (Document, error) {
		if gate != nil {
			<-gate
		}
		return doc, nil
	}
	factory := func(ctx context.Context) (OCREngine, error) {
		return &fakeEngine{spans: []string{"scanned", "text"}}, nil
	}

	model := &fakeModel{}
	rag := NewRAGService(model, 4)
	transcripts := NewTranscriptClient(&config.Config{TranscriptServiceURL: "http://127.0.0.1:1", TranscriptTimeout: 1})

	return &orchFixture{
		orch: NewOrchestrator(
			rag,
			NewExtractor(NewExtractionCache(), opener, factory),
			transcripts,
			NewIndexer(NewChunker(1000, 200), model, 100000),
		),
		rag:     rag,
		model:   model,
		pdfPath: pdfPath,
	}
}

func waitForState(t *testing.T, orch *Orchestrator, done func(models.JobState) bool) models.JobState {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := orch.Status()
		if done(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job state, last state: %+v", orch.Status())
	return models.JobState{}
}

func TestOrchestratorRunsJobToCompletion(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)

	if err := fx.orch.Start(context.Background(), []string{fx.pdfPath}, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	st := waitForState(t, fx.orch, func(st models.JobState) bool {
		return st.Status == models.JobComplete || st.Status == models.JobError
	})
	if st.Status != models.JobComplete {
		t.Fatalf("job failed: %+v", st)
	}
	if st.Message != "Knowledge base updated!" || st.Percent != 100 {
		t.Errorf("unexpected terminal state: %+v", st)
	}

	index := fx.rag.Index()
	if index == nil || index.Len() == 0 {
		t.Fatal("completed job did not publish a populated index")
	}
}

func TestOrchestratorRejectsConcurrentStart(t *testing.T) {
	gate := make(chan struct{})
	fx := newOrchestratorFixture(t, gate)

	if err := fx.orch.Start(context.Background(), []string{fx.pdfPath}, nil); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	// Once the cache-check note is visible the worker is parked on the
	// gate; no further state writes happen until it opens.
	waitForState(t, fx.orch, func(st models.JobState) bool {
		return st.Message == "Checking cache for lecture.pdf..."
	})

	before := fx.orch.Status()
	if err := fx.orch.Start(context.Background(), []string{fx.pdfPath}, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if after := fx.orch.Status(); after != before {
		t.Errorf("rejected start changed job state: %+v -> %+v", before, after)
	}

	close(gate)
	waitForState(t, fx.orch, func(st models.JobState) bool {
		return st.Status == models.JobComplete
	})
}

func TestOrchestratorEmptyJobCompletesWithoutPublishing(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)

	if err := fx.orch.Start(context.Background(), nil, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	st := waitForState(t, fx.orch, func(st models.JobState) bool {
		return st.Status == models.JobComplete || st.Status == models.JobError
	})
	if st.Status != models.JobComplete || st.Message != "No content found to index." {
		t.Errorf("unexpected terminal state: %+v", st)
	}
	if fx.rag.Index() != nil {
		t.Error("empty job published an index")
	}
}

func TestOrchestratorFailedJobKeepsPreviousIndex(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)

	if err := fx.orch.Start(context.Background(), []string{fx.pdfPath}, nil); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	waitForState(t, fx.orch, func(st models.JobState) bool {
		return st.Status == models.JobComplete
	})
	previous := fx.rag.Index()
	if previous == nil {
		t.Fatal("first job did not publish an index")
	}

	fx.model.err = errors.New("embedding quota exhausted")
	if err := fx.orch.Start(context.Background(), []string{fx.pdfPath}, nil); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	st := waitForState(t, fx.orch, func(st models.JobState) bool {
		return st.Status == models.JobComplete || st.Status == models.JobError
	})
	if st.Status != models.JobError || !strings.Contains(st.Message, "embedding quota exhausted") {
		t.Errorf("unexpected terminal state: %+v", st)
	}
	if fx.rag.Index() != previous {
		t.Error("failed job replaced the previously published index")
	}
}

func TestOrchestratorRejectsVideoWithoutCaptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "TranscriptsDisabled"}`))
	}))
	defer server.Close()

	fx := newOrchestratorFixture(t, nil)
	fx.orch.transcripts = NewTranscriptClient(&config.Config{TranscriptServiceURL: server.URL, TranscriptTimeout: 5})

	err := fx.orch.Start(context.Background(), nil, []string{"https://youtu.be/abc123xyz00"})
	var vErr *CaptionValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected CaptionValidationError, got %v", err)
	}
	if vErr.Reason != "Captions are disabled for this video." {
		t.Errorf("unexpected reason: %q", vErr.Reason)
	}
	if st := fx.orch.Status(); st.Status != models.JobIdle {
		t.Errorf("rejected job changed state: %+v", st)
	}
}
