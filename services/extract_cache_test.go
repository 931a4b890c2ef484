package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFileWithMtime(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime on %s: %v", path, err)
	}
}

func TestExtractionCacheFreshEntry(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "doc.pdf")
	cache := NewExtractionCache()

	now := time.Now()
	writeFileWithMtime(t, pdfPath, "pdf-bytes", now.Add(-time.Hour))
	writeFileWithMtime(t, cache.CachePath(pdfPath), "cached text", now)

	text, ok := cache.Load(pdfPath)
	if !ok {
		t.Fatal("expected fresh cache entry to be used")
	}
	if text != "cached text" {
		t.Errorf("unexpected cached text: %q", text)
	}
}

func TestExtractionCacheStaleEntry(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "doc.pdf")
	cache := NewExtractionCache()

	now := time.Now()
	// Cache mtime equal to and older than the source are both stale.
	for _, cacheTime := range []time.Time{now, now.Add(-time.Hour)} {
		writeFileWithMtime(t, pdfPath, "pdf-bytes", now)
		writeFileWithMtime(t, cache.CachePath(pdfPath), "cached text", cacheTime)

		if _, ok := cache.Load(pdfPath); ok {
			t.Errorf("stale cache entry (mtime %v) was trusted", cacheTime)
		}
		// Stale entries are ignored, not deleted.
		if _, err := os.Stat(cache.CachePath(pdfPath)); err != nil {
			t.Errorf("stale cache entry was removed: %v", err)
		}
	}
}

func TestExtractionCacheMissingFiles(t *testing.T) {
	dir := t.TempDir()
	cache := NewExtractionCache()

	if _, ok := cache.Load(filepath.Join(dir, "absent.pdf")); ok {
		t.Error("cache hit for a missing source file")
	}

	pdfPath := filepath.Join(dir, "doc.pdf")
	writeFileWithMtime(t, pdfPath, "pdf-bytes", time.Now())
	if _, ok := cache.Load(pdfPath); ok {
		t.Error("cache hit with no cache file present")
	}
}

func TestExtractionCacheStoreAndReload(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "doc.pdf")
	cache := NewExtractionCache()

	writeFileWithMtime(t, pdfPath, "pdf-bytes", time.Now().Add(-time.Minute))

	if err := cache.Store(pdfPath, "extracted text"); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	text, ok := cache.Load(pdfPath)
	if !ok || text != "extracted text" {
		t.Fatalf("round-trip failed: ok=%v text=%q", ok, text)
	}
}

func TestExtractionCacheNeverStoresEmptyText(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "doc.pdf")
	cache := NewExtractionCache()

	if err := cache.Store(pdfPath, ""); err != nil {
		t.Fatalf("storing empty text should be a no-op, got %v", err)
	}
	if _, err := os.Stat(cache.CachePath(pdfPath)); !os.IsNotExist(err) {
		t.Error("empty text was written to the cache")
	}
}
