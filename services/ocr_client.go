package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"citrine-sage-backend/internal/config"
	"citrine-sage-backend/internal/logger"
)

// OCREngine recognizes text spans in a raster image. Engines are
// expensive to construct and cheap to reuse; the extractor builds at most
// one per ingestion run.
type OCREngine interface {
	Read(ctx context.Context, img image.Image) ([]string, error)
}

// OCREngineFactory lazily constructs an engine on first need.
type OCREngineFactory func(ctx context.Context) (OCREngine, error)

// OCRClient talks to the OCR sidecar service over HTTP.
type OCRClient struct {
	httpClient *http.Client
	baseURL    string
	useGPU     bool
}

// ocrReadResponse is the sidecar's recognition result.
type ocrReadResponse struct {
	Success bool     `json:"success"`
	Spans   []string `json:"spans"`
	Error   string   `json:"error,omitempty"`
}

// ocrHealthResponse is the sidecar's health check result.
type ocrHealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device"`
}

// NewOCRClient creates a client for the OCR sidecar. It performs a health
// check so the expensive model load happens here, not mid-extraction.
func NewOCRClient(ctx context.Context, cfg *config.Config) (*OCRClient, error) {
	baseURL := cfg.OCRServiceURL
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}

	timeout := time.Duration(cfg.OCRTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute // OCR can take time
	}

	client := &OCRClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		useGPU:     cfg.OCRUseGPU,
	}

	healthy, err := client.IsHealthy(ctx)
	if err != nil {
		return nil, fmt.Errorf("OCR service health check failed: %w", err)
	}
	if !healthy {
		return nil, fmt.Errorf("OCR service is not healthy")
	}

	logger.Info("OCR engine ready", "url", baseURL, "gpu", cfg.OCRUseGPU)
	return client, nil
}

// IsHealthy checks if the OCR service is up with its model loaded.
func (c *OCRClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("OCR service unhealthy: status %d", resp.StatusCode)
	}

	var healthResp ocrHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return false, fmt.Errorf("failed to decode health response: %w", err)
	}

	return healthResp.Status == "healthy" && healthResp.ModelLoaded, nil
}

// Read sends the image to the sidecar and returns the recognized spans in
// reading order.
func (c *OCRClient) Read(ctx context.Context, img image.Image) ([]string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("image", "page.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if err := png.Encode(fileWriter, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	writer.WriteField("gpu", fmt.Sprintf("%t", c.useGPU))
	writer.WriteField("language", "en")
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/ocr/read", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OCR request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp ocrReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}

	if !ocrResp.Success {
		return nil, fmt.Errorf("OCR processing failed: %s", ocrResp.Error)
	}

	return ocrResp.Spans, nil
}
