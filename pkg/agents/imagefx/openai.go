package imagefx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pixora/pixora/pkg/models"
)

const (
	openAIImagesURL    = "https://api.openai.com/v1/images/generations"
	defaultOpenAIModel = "dall-e-3"
)

type openAIProvider struct {
	apiKey string
	model  string
	client *http.Client
}

func newOpenAIProvider(apiKey, model string) *openAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}

	return &openAIProvider{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{},
	}
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Model() string {
	return p.model
}

type openAIImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type openAIImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *openAIProvider) Generate(ctx context.Context, prompt string, size models.ImageSize) ([]byte, error) {
	payload, err := json.Marshal(openAIImageRequest{
		Model:          p.model,
		Prompt:         prompt,
		N:              1,
		Size:           size.String(),
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIImagesURL, bytes.NewReader(payload))
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

	var parsed openAIImageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode openai response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("openai request failed: %s", parsed.Error.Message)
		}

		return nil, fmt.Errorf("openai request failed with status %d", resp.StatusCode)
	}

	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("openai returned no images")
	}

	return base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
}
