package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const visionAnnotateURL = "https://vision.googleapis.com/v1/images:annotate"

// VisionClient runs text detection against the Google Cloud Vision API.
type VisionClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewVisionClient(apiKey string, timeout time.Duration) *VisionClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &VisionClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
	} `json:"responses"`
}

func (c *VisionClient) ExtractText(ctx context.Context, image []byte) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("vision api key not set")
	}

	payload, err := json.Marshal(annotateRequest{
		Requests: []annotateEntry{{
			Image: annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []annotateFeature{{
				Type:       "TEXT_DETECTION",
				MaxResults: 1,
			}},
		}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", visionAnnotateURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision api returned status %d", resp.StatusCode)
	}

	var annotated annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&annotated); err != nil {
		return "", err
	}
	if len(annotated.Responses) == 0 || len(annotated.Responses[0].TextAnnotations) == 0 {
		return "", nil
	}
	return annotated.Responses[0].TextAnnotations[0].Description, nil
}
