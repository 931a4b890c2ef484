package services

import (
	"fmt"
	"os"

	"citrine-sage-backend/internal/logger"
)

// CacheSuffix is appended to a PDF's path to form its cache file path.
const CacheSuffix = ".ocr_cache.txt"

// ExtractionCache memoizes whole-document extracted text on disk, next to
// the source file. An entry is trusted only while it is strictly newer
// than the source; stale entries are ignored, not deleted.
type ExtractionCache struct{}

func NewExtractionCache() *ExtractionCache {
	return &ExtractionCache{}
}

// CachePath returns the cache file path for a source PDF.
func (c *ExtractionCache) CachePath(pdfPath string) string {
	return pdfPath + CacheSuffix
}

// Load returns the cached text for pdfPath and whether it was usable.
func (c *ExtractionCache) Load(pdfPath string) (string, bool) {
	srcInfo, err := os.Stat(pdfPath)
	if err != nil {
		return "", false
	}

	cacheInfo, err := os.Stat(c.CachePath(pdfPath))
	if err != nil {
		return "", false
	}

	if !cacheInfo.ModTime().After(srcInfo.ModTime()) {
		logger.Debug("Extraction cache stale", "path", pdfPath)
		return "", false
	}

	data, err := os.ReadFile(c.CachePath(pdfPath))
	if err != nil {
		logger.Warn("Failed to read extraction cache", "path", pdfPath, "error", err)
		return "", false
	}

	return string(data), true
}

// Store writes extracted text for pdfPath. Empty text is never cached.
func (c *ExtractionCache) Store(pdfPath, text string) error {
	if text == "" {
		return nil
	}
	if err := os.WriteFile(c.CachePath(pdfPath), []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write extraction cache: %w", err)
	}
	return nil
}
