package services

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	"citrine-sage-backend/internal/logger"
)

// CacheJanitor periodically removes extraction cache files whose source
// PDF no longer exists in the upload directory.
type CacheJanitor struct {
	scheduler *gocron.Scheduler
	uploadDir string
}

func NewCacheJanitor(uploadDir string, everyHours int) *CacheJanitor {
	if everyHours <= 0 {
		everyHours = 6
	}

	j := &CacheJanitor{
		scheduler: gocron.NewScheduler(time.UTC),
		uploadDir: uploadDir,
	}
	j.scheduler.Every(everyHours).Hours().Do(j.Sweep)
	return j
}

func (j *CacheJanitor) Start() {
	logger.Info("Starting extraction cache janitor", "dir", j.uploadDir)
	j.scheduler.StartAsync()
}

func (j *CacheJanitor) Stop() {
	j.scheduler.Stop()
}

// Sweep removes orphaned cache files. Stale-but-not-orphaned entries are
// left alone; the cache ignores them by mtime comparison.
func (j *CacheJanitor) Sweep() {
	matches, err := filepath.Glob(filepath.Join(j.uploadDir, "*"+CacheSuffix))
	if err != nil {
		logger.Warn("Cache sweep failed", "error", err)
		return
	}

	removed := 0
	for _, cachePath := range matches {
		sourcePath := strings.TrimSuffix(cachePath, CacheSuffix)
		if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
			if err := os.Remove(cachePath); err != nil {
				logger.Warn("Failed to remove orphaned cache file", "path", cachePath, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		logger.Info("Removed orphaned cache files", "count", removed)
	}
}
