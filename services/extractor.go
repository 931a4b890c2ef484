package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"citrine-sage-backend/internal/logger"
)

// ProgressFunc receives human-readable status notes during extraction.
// A nil callback is a no-op.
type ProgressFunc func(message string)

func (f ProgressFunc) notify(format string, args ...any) {
	if f != nil {
		f(fmt.Sprintf(format, args...))
	}
}

const (
	// Pages whose trimmed digital text is at or below this length are
	// treated as scanned and fully rasterized for recognition.
	scannedPageThreshold = 50

	// Embedded images must exceed this many pixels in both dimensions to
	// be worth recognizing; smaller ones are icons and logos.
	minDiagramDimension = 200

	// Recognized diagram text shorter than this (trimmed) is discarded.
	minDiagramTextLen = 10

	// Full pages render at 2x linear scale for recognition accuracy.
	ocrRenderScale = 2.0
)

// Extractor turns PDFs into whole-document text using a hybrid per-page
// strategy: digital text where it exists, optical recognition where it
// does not, and supplementary recognition of large embedded diagrams.
type Extractor struct {
	cache     *ExtractionCache
	openDoc   DocumentOpener
	newEngine OCREngineFactory
}

func NewExtractor(cache *ExtractionCache, openDoc DocumentOpener, newEngine OCREngineFactory) *Extractor {
	return &Extractor{
		cache:     cache,
		openDoc:   openDoc,
		newEngine: newEngine,
	}
}

// ExtractionRun owns the lazily-created recognition engine for the
// lifetime of one ingestion job. The engine is constructed on first need
// and reused across every document in the run.
type ExtractionRun struct {
	ex        *Extractor
	engine    OCREngine
	engineErr error
	inited    bool
}

func (e *Extractor) NewRun() *ExtractionRun {
	return &ExtractionRun{ex: e}
}

func (r *ExtractionRun) engineFor(ctx context.Context) (OCREngine, error) {
	if !r.inited {
		r.inited = true
		logger.Info("Initializing OCR engine (first use this run)")
		r.engine, r.engineErr = r.ex.newEngine(ctx)
		if r.engineErr != nil {
			logger.Error("OCR engine initialization failed", "error", r.engineErr)
		}
	}
	return r.engine, r.engineErr
}

// ExtractPDF extracts the full text of one PDF. Failures below document
// granularity degrade to empty text for the failing unit; a document that
// cannot be opened yields an empty string, never an error.
func (r *ExtractionRun) ExtractPDF(ctx context.Context, path string, progress ProgressFunc) string {
	name := filepath.Base(path)
	progress.notify("Checking cache for %s...", name)

	if cached, ok := r.ex.cache.Load(path); ok {
		logger.Info("Loaded cached extraction", "file", name, "chars", len(cached))
		progress.notify("Loading cached results for %s...", name)
		return cached
	}

	doc, err := r.ex.openDoc(path)
	if err != nil {
		logger.Error("Failed to open PDF", "file", name, "error", err)
		return ""
	}
	defer doc.Close()

	numPages := doc.NumPages()
	logger.Info("Processing PDF", "file", name, "pages", numPages)
	progress.notify("Analyzing %d pages...", numPages)

	pageTexts := make([]string, 0, numPages)
	for i := 0; i < numPages; i++ {
		pageTexts = append(pageTexts, r.extractPage(ctx, doc.Page(i), i, progress))
	}

	fullText := strings.Join(pageTexts, "\n")

	if strings.TrimSpace(fullText) != "" {
		progress.notify("Saving to cache...")
		if err := r.ex.cache.Store(path, fullText); err != nil {
			logger.Warn("Failed to cache extraction", "file", name, "error", err)
		}
	}

	return fullText
}

// extractPage classifies one page and produces its text.
func (r *ExtractionRun) extractPage(ctx context.Context, page Page, pageNum int, progress ProgressFunc) string {
	digitalText, err := page.Text()
	if err != nil {
		logger.Warn("Digital text extraction failed", "page", pageNum+1, "error", err)
		digitalText = ""
	}

	if len(strings.TrimSpace(digitalText)) > scannedPageThreshold {
		return r.extractHybridPage(ctx, page, pageNum, digitalText, progress)
	}
	return r.extractScannedPage(ctx, page, pageNum, progress)
}

// extractScannedPage renders the whole page and recognizes it.
func (r *ExtractionRun) extractScannedPage(ctx context.Context, page Page, pageNum int, progress ProgressFunc) string {
	logger.Debug("Page classified as scanned", "page", pageNum+1)
	progress.notify("Full OCR needed for Page %d...", pageNum+1)

	engine, err := r.engineFor(ctx)
	if err != nil {
		return ""
	}

	img, err := page.Render(ocrRenderScale)
	if err != nil {
		logger.Warn("Page render failed", "page", pageNum+1, "error", err)
		return ""
	}

	spans, err := engine.Read(ctx, img)
	if err != nil {
		logger.Warn("Full-page OCR failed", "page", pageNum+1, "error", err)
		return ""
	}

	text := strings.Join(spans, " ")
	logger.Debug("Full-page OCR complete", "page", pageNum+1, "chars", len(text))
	return text
}

// extractHybridPage keeps the digital text and appends recognized text
// from any large embedded diagrams.
func (r *ExtractionRun) extractHybridPage(ctx context.Context, page Page, pageNum int, digitalText string, progress ProgressFunc) string {
	logger.Debug("Page classified as digital", "page", pageNum+1, "chars", len(digitalText))

	images, err := page.Images()
	if err != nil {
		logger.Warn("Embedded image enumeration failed", "page", pageNum+1, "error", err)
		return digitalText
	}

	pageText := digitalText
	for idx, img := range images {
		bounds := img.Bounds()
		if bounds.Dx() <= minDiagramDimension || bounds.Dy() <= minDiagramDimension {
			continue
		}

		progress.notify("OCRing Diagram on Page %d...", pageNum+1)

		engine, err := r.engineFor(ctx)
		if err != nil {
			continue
		}

		spans, err := engine.Read(ctx, img)
		if err != nil {
			logger.Warn("Diagram OCR failed", "page", pageNum+1, "image", idx+1, "error", err)
			continue
		}

		ocrText := strings.Join(spans, " ")
		if len(strings.TrimSpace(ocrText)) > minDiagramTextLen {
			pageText += fmt.Sprintf("\n\n[Diagram/Image Text]:\n%s\n", ocrText)
			logger.Debug("Extracted diagram text", "page", pageNum+1, "chars", len(ocrText))
		}
	}

	return pageText
}
