package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Tani1964/DelphiX/internal/model"
)

const pinataPinURL = "https://api.pinata.cloud/pinning/pinJSONToIPFS"

// PinataClient pins drug records to IPFS through Pinata and reads them back
// through a gateway.
type PinataClient struct {
	apiKey     string
	secretKey  string
	gatewayURL string
	httpClient *http.Client
}

func NewPinataClient(apiKey, secretKey, gatewayURL string, timeout time.Duration) *PinataClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if gatewayURL == "" {
		gatewayURL = "https://gateway.pinata.cloud/ipfs"
	}
	return &PinataClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *PinataClient) Configured() bool {
	return c.apiKey != "" && c.secretKey != ""
}

type pinRequest struct {
	PinataContent  model.IPFSDrugRecord `json:"pinataContent"`
	PinataMetadata pinMetadata          `json:"pinataMetadata"`
	PinataOptions  pinOptions           `json:"pinataOptions"`
}

type pinMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

type pinOptions struct {
	CIDVersion int `json:"cidVersion"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

func (c *PinataClient) Put(ctx context.Context, record model.IPFSDrugRecord) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("pinata credentials not set")
	}

	payload, err := json.Marshal(pinRequest{
		PinataContent: record,
		PinataMetadata: pinMetadata{
			Name: fmt.Sprintf("Drug-%s", record.NafdacCode),
			KeyValues: map[string]string{
				"nafdacCode": record.NafdacCode,
				"drugName":   record.Name,
			},
		},
		PinataOptions: pinOptions{CIDVersion: 1},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pinataPinURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pinata upload failed with status %d", resp.StatusCode)
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", err
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("pinata returned empty cid")
	}
	return pinned.IpfsHash, nil
}

func (c *PinataClient) Get(ctx context.Context, cid string) (*model.IPFSDrugRecord, error) {
	url := fmt.Sprintf("%s/%s", c.gatewayURL, cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("ipfs gateway returned status %d", resp.StatusCode)
	}

	var record model.IPFSDrugRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, err
	}
	return &record, nil
}
