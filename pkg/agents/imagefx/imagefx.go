package imagefx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pixora/pixora/pkg/models"
)

const defaultImageFXBaseURL = "https://aisandbox-pa.googleapis.com/v1"

type imageFXProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func newImageFXProvider(apiKey, baseURL string) *imageFXProvider {
	if baseURL == "" {
		baseURL = defaultImageFXBaseURL
	}

	return &imageFXProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (p *imageFXProvider) Name() string {
	return "imagefx"
}

func (p *imageFXProvider) Model() string {
	return "imagen"
}

type imageFXRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type imageFXResponse struct {
	Images []struct {
		EncodedImage string `json:"encodedImage"`
	} `json:"images"`
}

func (p *imageFXProvider) Generate(ctx context.Context, prompt string, size models.ImageSize) ([]byte, error) {
	payload, err := json.Marshal(imageFXRequest{Prompt: prompt, Width: size.Width, Height: size.Height})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/images:generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagefx request failed with status %d", resp.StatusCode)
	}

	var parsed imageFXResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode imagefx response: %w", err)
	}

	if len(parsed.Images) == 0 {
		return nil, fmt.Errorf("imagefx returned no images")
	}

	return base64.StdEncoding.DecodeString(parsed.Images[0].EncodedImage)
}
