package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Classification is an intent guess for free text
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classifier turns free text into an intent. Implementations live outside
// the engine; the engine only bounds the call.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// HTTPClassifier calls a classification endpoint that accepts
// {"text": "..."} and answers {"intent": "...", "confidence": 0.9}
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Classification{}, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Classification{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Classification{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Classification{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Classification{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out Classification
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Classification{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return Classification{}, fmt.Errorf("classifier confidence %v out of range", out.Confidence)
	}
	return out, nil
}
