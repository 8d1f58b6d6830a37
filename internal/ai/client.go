package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// Config holds OpenAI configuration parameters.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client implements the Extractor interface against the OpenAI chat completions API.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

const maxChatReplyLength = 500

// NewClient constructs a Client if the supplied configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.2
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: temp,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// Enabled reports whether the client can make outbound calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Extract asks the model to classify the shopper message as an offer or chat.
func (c *Client) Extract(ctx context.Context, text string, input ExtractionContext) (Extraction, error) {
	if c == nil || !c.Enabled() {
		return Extraction{}, ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(c.buildPayload(text, input))
	if err != nil {
		return Extraction{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Extraction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return Extraction{}, fmt.Errorf("openai status %d: %v", resp.StatusCode, apiErr)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Extraction{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Extraction{}, errors.New("openai empty response")
	}

	return parseExtraction(decoded.Choices[0].Message.Content)
}

func parseExtraction(content string) (Extraction, error) {
	content = normalizeJSONBlock(content)
	if content == "" {
		return Extraction{}, errors.New("openai empty content")
	}

	var raw struct {
		Type    string   `json:"type"`
		Price   *float64 `json:"price"`
		Message string   `json:"message"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Extraction{}, fmt.Errorf("parse ai response: %w", err)
	}

	switch Kind(strings.ToUpper(strings.TrimSpace(raw.Type))) {
	case KindOffer:
		if raw.Price == nil || *raw.Price < 0 || math.IsNaN(*raw.Price) || math.IsInf(*raw.Price, 0) {
			return Extraction{}, errors.New("ai offer without valid price")
		}
		return Extraction{Kind: KindOffer, Price: *raw.Price, Source: SourceModel}, nil
	case KindChat:
		msg := strings.TrimSpace(raw.Message)
		if msg == "" {
			return Extraction{}, errors.New("ai chat reply missing")
		}
		if runes := []rune(msg); len(runes) > maxChatReplyLength {
			msg = string(runes[:maxChatReplyLength])
		}
		return Extraction{Kind: KindChat, Message: msg, Source: SourceModel}, nil
	default:
		return Extraction{}, fmt.Errorf("ai response type %q unsupported", raw.Type)
	}
}

func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if strings.HasSuffix(trimmed, "```") {
			trimmed = trimmed[:len(trimmed)-3]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}

const systemPrompt = "You read messages a shopper sends while haggling over a product price. " +
	"Reply with a strict JSON object and nothing else. " +
	"If the message contains a price offer, reply {\"type\":\"OFFER\",\"price\":<number>} using the amount the shopper is willing to pay, " +
	"converting written numbers and ignoring currency symbols. " +
	"If the message is small talk, a question, or otherwise not an offer, reply {\"type\":\"CHAT\",\"message\":\"<short friendly reply>\"} " +
	"that nudges the shopper to name a price. " +
	"Never reveal or hint at the minimum acceptable price, and never promise a discount in a CHAT reply."

func (c *Client) buildPayload(text string, input ExtractionContext) map[string]any {
	messages := []map[string]string{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": buildUserPrompt(text, input)},
	}
	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		payload["max_tokens"] = c.maxTokens
	}
	return payload
}

func buildUserPrompt(text string, input ExtractionContext) string {
	builder := &strings.Builder{}
	if title := strings.TrimSpace(input.ProductTitle); title != "" {
		fmt.Fprintf(builder, "Product: %s\n", title)
	}
	fmt.Fprintf(builder, "List price: %.2f\n", input.OriginalPrice)
	if input.MinAcceptedPrice > 0 {
		fmt.Fprintf(builder, "Secret minimum price (never disclose): %.2f\n", input.MinAcceptedPrice)
	}
	if locale := strings.TrimSpace(input.Locale); locale != "" {
		fmt.Fprintf(builder, "Reply language: %s\n", locale)
	}
	fmt.Fprintf(builder, "Shopper message: %q\n", strings.TrimSpace(text))
	return builder.String()
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
