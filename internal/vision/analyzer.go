package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/pawpoint/pawpoint/internal/errors"
	"github.com/pawpoint/pawpoint/internal/telemetry"
)

// Config holds the generative-model endpoint settings.
type Config struct {
	// Endpoint is a generateContent-style REST URL.
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Analyzer sends photos to the model endpoint. One prompt, one reply,
// no conversation state.
type Analyzer struct {
	client *http.Client
	config Config
}

// NewAnalyzer creates an analyzer. An empty endpoint leaves the
// analyzer disabled.
func NewAnalyzer(config Config) *Analyzer {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Analyzer{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
	}
}

// Enabled reports whether the analyzer is configured.
func (a *Analyzer) Enabled() bool {
	return a.config.Endpoint != "" && a.config.APIKey != ""
}

// generateContent request/response shapes, reduced to what we use.
type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// AnalyzePhoto runs one prompt/response round trip against the model
// and parses the verdict.
func (a *Analyzer) AnalyzePhoto(ctx context.Context, imageData []byte, mimeType string) (*Analysis, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":   "analyze_photo",
		"image_bytes": len(imageData),
		"service":     "vision",
	})

	if !a.Enabled() {
		return nil, apperrors.NewExternalError("vision", "analyze_photo",
			fmt.Errorf("analyzer is not configured"))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	reqBody := generateRequest{}
	reqBody.Contents = append(reqBody.Contents, struct {
		Parts []part `json:"parts"`
	}{
		Parts: []part{
			{Text: analysisPrompt},
			{InlineData: &inlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(imageData),
			}},
		},
	})

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		logger.WithError(err).Error("Vision request failed")
		return nil, apperrors.NewExternalError("vision", "analyze_photo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithField("status", resp.Status).Error("Vision endpoint returned unexpected status")
		return nil, apperrors.NewExternalError("vision", "analyze_photo",
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewExternalError("vision", "analyze_photo", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, apperrors.NewExternalError("vision", "analyze_photo",
			fmt.Errorf("model returned no candidates"))
	}

	analysis, err := ParseAnalysis(decoded.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		logger.WithError(err).Error("Failed to parse model verdict")
		return nil, apperrors.NewExternalError("vision", "analyze_photo", err)
	}

	logger.WithField("is_pet", analysis.IsPet).Info("Photo analyzed")
	return analysis, nil
}
