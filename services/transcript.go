package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"citrine-sage-backend/internal/config"
	"citrine-sage-backend/internal/logger"
)

// TranscriptClient fetches video captions from the transcript service.
type TranscriptClient struct {
	httpClient *http.Client
	baseURL    string
}

// captionSegment is one caption line with its timing.
type captionSegment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func NewTranscriptClient(cfg *config.Config) *TranscriptClient {
	baseURL := cfg.TranscriptServiceURL
	if baseURL == "" {
		baseURL = "http://localhost:8002"
	}

	timeout := time.Duration(cfg.TranscriptTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &TranscriptClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// VideoID extracts the media identifier from a YouTube URL. Supports the
// short-link form (id is the last path segment) and the canonical form
// (id is the v query parameter). Anything else is returned as-is.
func VideoID(url string) string {
	if strings.Contains(url, "youtu.be") {
		parts := strings.Split(url, "/")
		last := parts[len(parts)-1]
		return strings.SplitN(last, "?", 2)[0]
	}
	if strings.Contains(url, "youtube.com") {
		if _, after, found := strings.Cut(url, "v="); found {
			return strings.SplitN(after, "&", 2)[0]
		}
	}
	return url
}

// FetchTranscript returns the full transcript of the video as a single
// space-joined string in temporal order. Failures degrade to an empty
// string; the document is silently excluded downstream.
func (c *TranscriptClient) FetchTranscript(ctx context.Context, videoURL string) string {
	videoID := VideoID(videoURL)

	segments, err := c.fetchSegments(ctx, videoID)
	if err != nil {
		logger.Error("Failed to fetch transcript", "url", videoURL, "error", err)
		return ""
	}

	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}
	return strings.Join(texts, " ")
}

// ValidateCaptions reports whether captions exist for the video without
// fetching the full transcript. On failure the reason distinguishes
// disabled captions from missing transcripts for user-facing reporting.
func (c *TranscriptClient) ValidateCaptions(ctx context.Context, videoURL string) (bool, string) {
	videoID := VideoID(videoURL)

	// The transcript service exposes different listing capabilities
	// depending on its version; probe them in order and succeed if any
	// of them does.
	probes := []struct {
		name string
		call func(context.Context, string) error
	}{
		{"list", c.probeList},
		{"list-static", c.probeListStatic},
		{"fetch", c.probeFetch},
	}

	var lastErr error
	for _, probe := range probes {
		err := probe.call(ctx, videoID)
		if err == nil {
			return true, ""
		}
		if isCapabilityMissing(err) {
			// This shape of the listing capability does not exist in
			// this environment; try the next one.
			logger.Debug("Transcript capability unavailable", "probe", probe.name, "video", videoID)
			continue
		}
		lastErr = err
		break
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no transcript listing capability available")
	}

	errMsg := lastErr.Error()
	if strings.Contains(errMsg, "TranscriptsDisabled") {
		return false, "Captions are disabled for this video."
	}
	if strings.Contains(errMsg, "NoTranscriptFound") {
		return false, "No captions found for this video. Please upload a video with captions."
	}
	return false, fmt.Sprintf("Could not find captions: %s", errMsg)
}

func (c *TranscriptClient) fetchSegments(ctx context.Context, videoID string) ([]captionSegment, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/videos/%s/transcript", c.baseURL, videoID))
	if err != nil {
		return nil, err
	}

	var segments []captionSegment
	if err := json.Unmarshal(body, &segments); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return segments, nil
}

func (c *TranscriptClient) probeList(ctx context.Context, videoID string) error {
	_, err := c.get(ctx, fmt.Sprintf("%s/videos/%s/transcripts", c.baseURL, videoID))
	return err
}

func (c *TranscriptClient) probeListStatic(ctx context.Context, videoID string) error {
	_, err := c.get(ctx, fmt.Sprintf("%s/transcripts/%s", c.baseURL, videoID))
	return err
}

func (c *TranscriptClient) probeFetch(ctx context.Context, videoID string) error {
	_, err := c.fetchSegments(ctx, videoID)
	return err
}

// serviceError carries the status and raw body of a failed call so the
// caller can classify the failure cause.
type serviceError struct {
	status int
	body   string
}

func (e *serviceError) Error() string {
	return fmt.Sprintf("transcript service returned %d: %s", e.status, e.body)
}

// isCapabilityMissing reports whether the endpoint shape itself is absent
// (as opposed to the video lacking captions).
func isCapabilityMissing(err error) bool {
	se, ok := err.(*serviceError)
	return ok && (se.status == http.StatusNotImplemented || se.status == http.StatusMethodNotAllowed)
}

func (c *TranscriptClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &serviceError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
