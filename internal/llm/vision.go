package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	visionTextModel  = "gemini-pro"
	visionImageModel = "gemini-pro-vision"
)

// VisionClient talks to the multimodal generation backend.
type VisionClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewVisionBackend selects the multimodal variant once at startup.
func NewVisionBackend(cfg domain.BackendsConfig) domain.VisionBackend {
	if cfg.VisionAPIKey == "" {
		return &DegradedVision{}
	}
	timeout := time.Duration(cfg.ChatTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &VisionClient{
		apiKey:  cfg.VisionAPIKey,
		baseURL: cfg.VisionBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type visionPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *visionInlineData `json:"inline_data,omitempty"`
}

type visionInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type visionRequest struct {
	Contents []struct {
		Parts []visionPart `json:"parts"`
	} `json:"contents"`
}

type visionResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate runs a text-only round trip.
func (c *VisionClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, visionTextModel, []visionPart{{Text: prompt}})
}

// GenerateWithImage embeds image bytes alongside the prompt.
func (c *VisionClient) GenerateWithImage(ctx context.Context, prompt string, image []byte) (string, error) {
	parts := []visionPart{
		{Text: prompt},
		{InlineData: &visionInlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}
	return c.generate(ctx, visionImageModel, parts)
}

func (c *VisionClient) generate(ctx context.Context, model string, parts []visionPart) (string, error) {
	var payload visionRequest
	payload.Contents = append(payload.Contents, struct {
		Parts []visionPart `json:"parts"`
	}{Parts: parts})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vision request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: vision backend returned %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var parsed visionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidates", domain.ErrUnparsableResponse)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// Mode reports the live variant.
func (c *VisionClient) Mode() domain.BackendMode { return domain.ModeLive }

// DegradedVision stands in when no vision credential is configured.
// Every call reports unavailability; the pattern analyzer absorbs it
// into its canned opinions, so the failure never propagates outward.
type DegradedVision struct{}

func (d *DegradedVision) Generate(ctx context.Context, prompt string) (string, error) {
	return "", domain.ErrCollaboratorUnavailable
}

func (d *DegradedVision) GenerateWithImage(ctx context.Context, prompt string, image []byte) (string, error) {
	return "", domain.ErrCollaboratorUnavailable
}

// Mode reports the degraded variant.
func (d *DegradedVision) Mode() domain.BackendMode { return domain.ModeDegraded }
