package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Tani1964/DelphiX/internal/model"
)

// RegistryClient queries the authoritative drug registry (EMDEX). An empty
// base URL means the registry is unconfigured and every lookup is a miss.
type RegistryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRegistryClient(baseURL, apiKey string, timeout time.Duration) *RegistryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RegistryClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RegistryClient) Lookup(ctx context.Context, nafdacCode string) (*model.DrugRecord, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	url := fmt.Sprintf("%s/verify/%s", c.baseURL, nafdacCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var record model.DrugRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, err
	}
	if record.Name == "" {
		return nil, nil
	}
	return &record, nil
}
