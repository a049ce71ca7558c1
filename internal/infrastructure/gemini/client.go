package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/quotecompare/backend/internal/domain"
)

const maxAttempts = 3

const defaultBaseURL = "https://generativelanguage.googleapis.com/"

const extractionPrompt = `You are a parser that converts price quotations into structured line items.
You MUST always return a JSON object with a top-level "items" array.
Each element in items is an object with:

supplier_name (string)
product_name (string)
product_id (string or null)
quantity (number or null)
unit_price (number or null)
total_price (number or null)

Rules:
If the document is messy or unclear, make your best reasonable guess.
If some value is missing or not numeric, use null instead of skipping the whole item.
Do not include explanations or comments, output ONLY valid JSON.

Here is the text content of the document:
`

// Config holds the Gemini client settings
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerMinute int
}

// Client extracts line items through the Gemini generateContent API
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
	wait        func(ctx context.Context, d time.Duration) error
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
}

// NewClient creates a new Gemini client. The limiter is shared by every
// request regardless of which key it carries.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 5)

	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		rateLimiter: limiter,
		logger:      logger.With().Str("component", "gemini").Logger(),
		wait:        sleepContext,
	}
}

// HasDefaultKey reports whether uploads without their own key can still use the AI service
func (c *Client) HasDefaultKey() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// ExtractLines sends the document text to the model and maps the answer.
// credential overrides the configured key when non-empty.
func (c *Client) ExtractLines(ctx context.Context, text string, credential string) ([]domain.ExtractedLine, error) {
	key := strings.TrimSpace(credential)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no API key configured", domain.ErrCredentialRejected)
	}

	answer, err := c.generate(ctx, key, extractionPrompt+text)
	if err != nil {
		return nil, err
	}

	lines, err := ParseResponse(answer)
	if err != nil {
		c.logger.Warn().Err(err).Int("response_len", len(answer)).Msg("unparseable model response")
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	c.logger.Info().Int("lines", len(lines)).Msg("model extraction finished")
	return lines, nil
}

func (c *Client) generate(ctx context.Context, key, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v1beta/%s:generateContent?%s",
		c.baseURL, c.model, url.Values{"key": {key}}.Encode())

	// Retry up to maxAttempts times for transient failures
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %v", domain.ErrExtractionFailed, err)
		}

		text, err := c.doRequest(ctx, reqURL, body)
		if err == nil {
			return text, nil
		}

		if rejected(err) {
			c.logger.Warn().Err(err).Msg("API key rejected")
			return "", fmt.Errorf("%w: %v", domain.ErrCredentialRejected, apiMessage(err))
		}
		if !retryable(err) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, apiMessage(err))
		}

		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("generateContent failed, retrying")
		lastErr = err
		if attempt < maxAttempts {
			if err := c.wait(ctx, exponentialBackoff(attempt)); err != nil {
				return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
			}
		}
	}

	return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, apiMessage(lastErr))
}

// doRequest posts one generateContent call. Non-2xx answers come back as *googleapi.Error.
func (c *Client) doRequest(ctx context.Context, reqURL string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "QuoteCompare/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return "", err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &googleapi.Error{Code: resp.StatusCode, Message: "failed to decode response: " + err.Error()}
	}
	return responseText(&parsed), nil
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func responseText(resp *generateResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		// first candidate with content is the answer
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func rejected(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(gerr.Message), "api key")
	}
	return false
}

func retryable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		// transport errors
		return true
	}
	return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
}

func apiMessage(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return fmt.Sprintf("status %d: %s", gerr.Code, gerr.Message)
	}
	return err.Error()
}
