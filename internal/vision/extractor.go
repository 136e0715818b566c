package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultExtractorURL = "http://localhost:8000"

// Extractor computes face detections and descriptors through the embedding
// service. The service hosts the actual recognition model; the kiosk only
// ships bytes to it.
type Extractor struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewExtractor creates a client for the embedding service.
func NewExtractor(baseURL string, dim int) *Extractor {
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	return &Extractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

// Dim returns the descriptor dimension this extractor is configured for.
func (e *Extractor) Dim() int {
	return e.dim
}

// Ping verifies the embedding service is up and the model is loaded.
// Called once at startup; failure degrades the kiosk to manual mode.
func (e *Extractor) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// detectResponse is the response from the detection endpoint.
type detectResponse struct {
	Faces []Detection `json:"faces"`
}

// DetectFaces runs face detection on a full frame and returns all detected
// face regions with their landmarks.
func (e *Extractor) DetectFaces(ctx context.Context, frameData []byte) ([]Detection, error) {
	body, err := e.postMultipartImage(ctx, "/detect", frameData)
	if err != nil {
		return nil, err
	}

	var det detectResponse
	if err := json.Unmarshal(body, &det); err != nil {
		return nil, fmt.Errorf("failed to parse detection response: %w", err)
	}
	return det.Faces, nil
}

// descriptorResponse is the response from the embedding endpoint.
type descriptorResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// ExtractDescriptor computes the descriptor for a face crop.
func (e *Extractor) ExtractDescriptor(ctx context.Context, cropData []byte) ([]float32, error) {
	body, err := e.postMultipartImage(ctx, "/embed/face", cropData)
	if err != nil {
		return nil, err
	}

	var desc descriptorResponse
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	if len(desc.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty descriptor")
	}
	if e.dim > 0 && len(desc.Embedding) != e.dim {
		return nil, fmt.Errorf("descriptor dimension mismatch: got %d, want %d", len(desc.Embedding), e.dim)
	}

	return desc.Embedding, nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint.
func (e *Extractor) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
