package routes

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"citrine-sage-backend/internal/config"
	"citrine-sage-backend/services"
)

func SetupSourceRoutes(router *gin.Engine, cfg *config.Config, orchestrator *services.Orchestrator) {
	api := router.Group("/api")

	api.POST("/upload", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file part"})
			return
		}
		if file.Filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
			return
		}
		if !strings.HasSuffix(strings.ToLower(file.Filename), ".pdf") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files allowed"})
			return
		}
		if file.Size > cfg.MaxFileSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
			return
		}

		// Base strips any path components a client might smuggle in.
		filename := filepath.Base(file.Filename)
		dest := filepath.Join(cfg.UploadDir, filename)
		if err := c.SaveUploadedFile(file, dest); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save file: %v", err)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "filename": filename})
	})

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, orchestrator.Status())
	})

	api.POST("/process-sources", func(c *gin.Context) {
		var req struct {
			YouTubeURLs  []string  `json:"youtube_urls"`
			PDFFilenames *[]string `json:"pdf_filenames"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
			})
			return
		}

		pdfPaths := listUploadedPDFs(cfg.UploadDir, req.PDFFilenames)

		err := orchestrator.Start(c.Request.Context(), pdfPaths, req.YouTubeURLs)

		var capErr *services.CaptionValidationError
		switch {
		case errors.Is(err, services.ErrBusy):
			c.JSON(http.StatusConflict, gin.H{"status": "Busy", "message": "Already processing"})
		case errors.As(err, &capErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid Video (%s): %s", capErr.URL, capErr.Reason)})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusAccepted, gin.H{"status": "Accepted", "message": "Processing started in background"})
		}
	})
}

// listUploadedPDFs returns the PDFs to ingest: every PDF in the upload
// directory, or only the user-selected subset when one is provided.
func listUploadedPDFs(uploadDir string, selected *[]string) []string {
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		return nil
	}

	wanted := map[string]bool{}
	if selected != nil {
		for _, name := range *selected {
			wanted[filepath.Base(name)] = true
		}
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			continue
		}
		if selected != nil && !wanted[name] {
			continue
		}
		paths = append(paths, filepath.Join(uploadDir, name))
	}
	return paths
}
