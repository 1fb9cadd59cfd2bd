package reason

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"formosa/internal/apierr"
	"formosa/internal/keyring"
)

// DefaultGeminiURL is the Generative Language API base URL.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiGenerator captions images through the Gemini generateContent API,
// rotating API keys per request.
type GeminiGenerator struct {
	Keys  *keyring.Ring
	Model string
	// BaseURL is overridable for tests; defaults to DefaultGeminiURL.
	BaseURL string
	// Client is overridable for tests.
	Client *http.Client
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt and the image inline and returns the model's
// text response.
func (g *GeminiGenerator) Generate(prompt, imagePath string) (string, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", imagePath, err)
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{
					MimeType: imageMimeType(imagePath),
					Data:     base64.StdEncoding.EncodeToString(imageData),
				}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	baseURL := g.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, g.Model, g.Keys.Next())
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	var parsed geminiResponse
	if unmarshalErr := json.Unmarshal(body, &parsed); unmarshalErr != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("failed to parse gemini response: %w", unmarshalErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if parsed.Error.Status == "RESOURCE_EXHAUSTED" {
			return "", apierr.NewQuotaError("gemini quota exhausted: " + parsed.Error.Message)
		}
		return "", apierr.NewRateLimitError("gemini returned 429")
	case resp.StatusCode == http.StatusServiceUnavailable:
		return "", apierr.NewRateLimitError("gemini returned 503")
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, parsed.Error.Message)
	}

	var texts []string
	for _, candidate := range parsed.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		break
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("gemini returned no text candidates")
	}
	return strings.TrimSpace(strings.Join(texts, "")), nil
}

// imageMimeType maps the file extension to a MIME type, defaulting to JPEG
// since that is what the normalize stage produces.
func imageMimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
