package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"citrine-sage-backend/internal/logger"
	"citrine-sage-backend/models"
)

// ErrBusy is returned when a job start is requested while another job
// holds the ingestion slot. The request is rejected, never queued.
var ErrBusy = errors.New("ingestion already running")

// CaptionValidationError rejects a job before any indexing work begins
// because one of its videos has no usable captions.
type CaptionValidationError struct {
	URL    string
	Reason string
}

func (e *CaptionValidationError) Error() string {
	return fmt.Sprintf("invalid video (%s): %s", e.URL, e.Reason)
}

// Orchestrator owns the knowledge base lifecycle: it runs at most one
// ingestion job at a time in a background worker and atomically publishes
// the resulting index through the RAG service.
type Orchestrator struct {
	rag         *RAGService
	extractor   *Extractor
	transcripts *TranscriptClient
	indexer     *Indexer

	mu    sync.Mutex
	state models.JobState
}

func NewOrchestrator(rag *RAGService, extractor *Extractor, transcripts *TranscriptClient, indexer *Indexer) *Orchestrator {
	return &Orchestrator{
		rag:         rag,
		extractor:   extractor,
		transcripts: transcripts,
		indexer:     indexer,
		state: models.JobState{
			Status: models.JobIdle,
		},
	}
}

// Status returns a snapshot of the current/last job.
func (o *Orchestrator) Status() models.JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start validates the requested sources and, if accepted, launches the
// ingestion worker. It returns ErrBusy while a job is queued or
// processing, or a CaptionValidationError when a video has no captions;
// in both cases the existing state is left untouched.
func (o *Orchestrator) Start(ctx context.Context, pdfPaths, videoURLs []string) error {
	o.mu.Lock()
	if o.state.Status.Active() {
		o.mu.Unlock()
		return ErrBusy
	}
	o.mu.Unlock()

	// Validation happens before the job is accepted, so a rejected
	// request leaves no state change behind.
	for _, url := range videoURLs {
		ok, reason := o.transcripts.ValidateCaptions(ctx, url)
		if !ok {
			return &CaptionValidationError{URL: url, Reason: reason}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Status.Active() {
		return ErrBusy
	}
	o.state = models.JobState{
		Status:  models.JobQueued,
		Message: "Queued for processing...",
		Percent: 0,
	}

	go o.run(pdfPaths, videoURLs)

	return nil
}

// run is the background worker for one accepted job.
func (o *Orchestrator) run(pdfPaths, videoURLs []string) {
	ctx := context.Background()
	tracer := otel.Tracer("ingestion")
	ctx, span := tracer.Start(ctx, "ingestion.run")
	defer span.End()

	span.SetAttributes(
		attribute.Int("ingestion.pdf_count", len(pdfPaths)),
		attribute.Int("ingestion.video_count", len(videoURLs)),
	)

	o.setState(models.JobProcessing, "Starting ingestion...", 5)

	progress := func(msg string) {
		o.setProgress(msg)
	}

	docs := o.loadSources(ctx, pdfPaths, videoURLs, progress)
	o.setState(models.JobProcessing, "Indexing content...", 60)

	index, err := o.indexer.Build(ctx, docs, progress)
	if err != nil {
		logger.Error("Ingestion failed", "error", err)
		span.SetAttributes(attribute.Bool("ingestion.error", true))
		o.setState(models.JobError, fmt.Sprintf("Error: %v", err), 100)
		return
	}

	if index == nil {
		// Nothing usable was ingested. The job still completes; the
		// previously-live index (if any) keeps serving.
		o.setState(models.JobComplete, "No content found to index.", 100)
		return
	}

	o.rag.Publish(index)
	progress("RAG System Ready!")
	o.setState(models.JobComplete, "Knowledge base updated!", 100)
	logger.Info("Knowledge base updated", "passages", index.Len())
}

// loadSources produces one SourceDocument per input, in input order.
// Sources that yield no text are skipped, not errors.
func (o *Orchestrator) loadSources(ctx context.Context, pdfPaths, videoURLs []string, progress ProgressFunc) []models.SourceDocument {
	var docs []models.SourceDocument

	run := o.extractor.NewRun()
	for _, path := range pdfPaths {
		progress.notify("Loading PDF: %s...", filepath.Base(path))
		text := run.ExtractPDF(ctx, path, progress)
		if text == "" {
			logger.Warn("PDF produced no text, skipping", "path", path)
			continue
		}
		docs = append(docs, models.SourceDocument{
			SourceID: filepath.Base(path),
			Text:     text,
			Kind:     models.SourcePDF,
		})
	}

	for _, url := range videoURLs {
		progress.notify("Fetching Transcript: %s...", url)
		transcript := o.transcripts.FetchTranscript(ctx, url)
		if transcript == "" {
			logger.Warn("Video produced no transcript, skipping", "url", url)
			continue
		}
		docs = append(docs, models.SourceDocument{
			SourceID: videoSourceID(url),
			Text:     transcript,
			Kind:     models.SourceVideo,
		})
	}

	return docs
}

// videoSourceID is the truncated display label for a video source.
func videoSourceID(url string) string {
	id := VideoID(url)
	if len(id) > 4 {
		id = id[:4]
	}
	return fmt.Sprintf("YouTube (%s...)", id)
}

func (o *Orchestrator) setState(status models.JobStatus, message string, percent int) {
	o.mu.Lock()
	o.state = models.JobState{Status: status, Message: message, Percent: percent}
	o.mu.Unlock()
}

// setProgress records a progress note from the extraction pipeline; the
// worker never blocks waiting for pollers to observe it.
func (o *Orchestrator) setProgress(message string) {
	logger.Debug("Ingestion progress", "message", message)
	o.mu.Lock()
	o.state.Status = models.JobProcessing
	o.state.Message = message
	o.mu.Unlock()
}
