package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chartsense/backend-go/internal/config"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/ratelimit"
)

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	Thought    bool              `json:"thought,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema         `json:"responseSchema,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

// Text joins the answer parts of the first candidate, skipping thoughts.
func (r generateResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

type circuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openedAt  time.Time
	cooldown  time.Duration
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

func (c *circuitBreaker) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures < c.threshold {
		return true
	}
	if time.Since(c.openedAt) > c.cooldown {
		c.failures = 0
		c.openedAt = time.Time{}
		return true
	}
	return false
}

func (c *circuitBreaker) success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.openedAt = time.Time{}
}

func (c *circuitBreaker) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.threshold {
		c.openedAt = time.Now()
	}
}

// Gemini talks to the Generative Language REST API. No call is retried.
type Gemini struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	thinking    int
	hc          *http.Client
	limiter     *ratelimit.Limiter
	cb          *circuitBreaker
}

func NewGemini(cfg config.Config) *Gemini {
	return &Gemini{
		baseURL:     strings.TrimRight(cfg.ModelBaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.ModelName,
		temperature: cfg.ModelTemperature,
		thinking:    cfg.ModelThinking,
		hc: &http.Client{
			Timeout: cfg.ModelTimeout,
		},
		limiter: ratelimit.NewLimiter("model", cfg.ModelRatePerMin),
		cb:      newCircuitBreaker(cfg.CircuitFailLimit, cfg.CircuitCooldown),
	}
}

func (g *Gemini) ModelName() string { return g.model }

func (g *Gemini) endpoint(method string) string {
	u := fmt.Sprintf("%s/v1beta/models/%s:%s", g.baseURL, url.PathEscape(g.model), method)
	if method == "streamGenerateContent" {
		u += "?alt=sse"
	}
	return u
}

func (g *Gemini) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1beta/models/%s", g.baseURL, url.PathEscape(g.model)), nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	res, err := g.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &UpstreamError{Status: res.StatusCode, Body: string(body)}
	}
	return nil
}

func (g *Gemini) Verify(ctx context.Context, img ImageData, expected models.Timeframe) (models.Verification, error) {
	var out models.Verification
	req := generateRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: img.MediaType, Data: img.Data}},
				{Text: verificationPrompt(string(expected))},
			},
		}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   verificationSchema,
		},
	}
	resp, err := g.generate(ctx, req)
	if err != nil {
		return out, err
	}
	var wire struct {
		IsValid *bool   `json:"isValid"`
		Reason  *string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text())), &wire); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if wire.IsValid == nil || wire.Reason == nil {
		return out, fmt.Errorf("%w: verification fields missing", ErrInvalidFormat)
	}
	return models.Verification{IsValid: *wire.IsValid, Reason: *wire.Reason}, nil
}

func (g *Gemini) Analyze(ctx context.Context, parts []Part) (models.AnalysisResult, error) {
	temp := g.temperature
	req := generateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: analysisSystemInstruction}}},
		Contents:          []geminiContent{{Role: "user", Parts: toGeminiParts(parts)}},
		GenerationConfig: &generationConfig{
			Temperature:      &temp,
			ResponseMimeType: "application/json",
			ResponseSchema:   analysisSchema,
			ThinkingConfig:   g.thinkingConfig(),
		},
	}
	resp, err := g.generate(ctx, req)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	return ParseAnalysis(resp.Text())
}

func (g *Gemini) CreateSession(_ context.Context) (ChatSession, error) {
	return &geminiChat{g: g}, nil
}

func (g *Gemini) thinkingConfig() *thinkingConfig {
	if g.thinking <= 0 {
		return nil
	}
	return &thinkingConfig{ThinkingBudget: g.thinking}
}

func (g *Gemini) newRequest(ctx context.Context, method string, body generateRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(method), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)
	return req, nil
}

// send performs one request and returns the response when the status is 2xx.
func (g *Gemini) send(ctx context.Context, method string, body generateRequest) (*http.Response, error) {
	if !g.cb.allow() {
		return nil, ErrCircuitOpen
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := g.newRequest(ctx, method, body)
	if err != nil {
		return nil, err
	}
	res, err := g.hc.Do(req)
	if err != nil {
		g.cb.fail()
		return nil, err
	}
	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		res.Body.Close()
		upErr := &UpstreamError{Status: res.StatusCode, Body: string(raw)}
		switch {
		case res.StatusCode == http.StatusTooManyRequests:
			g.limiter.SignalRateLimited()
		case res.StatusCode >= 500:
			g.cb.fail()
		}
		return nil, ClassifyModelError(upErr)
	}
	return res, nil
}

func (g *Gemini) generate(ctx context.Context, body generateRequest) (generateResponse, error) {
	var out generateResponse
	res, err := g.send(ctx, "generateContent", body)
	if err != nil {
		return out, err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	g.cb.success()
	g.limiter.ResetBackoff()
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return out, fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	return out, nil
}

// stream posts to streamGenerateContent and feeds every SSE data frame's
// text to onChunk. It returns the concatenated reply.
func (g *Gemini) stream(ctx context.Context, body generateRequest, onChunk func(string)) (string, error) {
	res, err := g.send(ctx, "streamGenerateContent", body)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return full.String(), ClassifyModelError(&UpstreamError{Status: chunk.Error.Code, Body: data})
		}
		text := chunk.Text()
		if text == "" {
			continue
		}
		full.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
	}
	if err := scanner.Err(); err != nil {
		g.cb.fail()
		return full.String(), err
	}
	g.cb.success()
	g.limiter.ResetBackoff()
	return full.String(), nil
}

func toGeminiParts(parts []Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			out = append(out, geminiPart{InlineData: &geminiInlineData{MimeType: p.Image.MediaType, Data: p.Image.Data}})
			continue
		}
		out = append(out, geminiPart{Text: p.Text})
	}
	return out
}

// geminiChat keeps the conversation history client side. A turn is added to
// the history only after its reply has streamed completely.
type geminiChat struct {
	g       *Gemini
	mu      sync.Mutex
	history []geminiContent
}

func (c *geminiChat) SendTurn(ctx context.Context, msg Message, onChunk func(string)) error {
	user := geminiContent{Role: "user"}
	if msg.Bare() {
		user.Parts = []geminiPart{{Text: msg.Text}}
	} else {
		user.Parts = toGeminiParts(msg.Parts)
	}

	c.mu.Lock()
	contents := make([]geminiContent, 0, len(c.history)+1)
	contents = append(contents, c.history...)
	contents = append(contents, user)
	c.mu.Unlock()

	temp := c.g.temperature
	req := generateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: chatSystemInstruction}}},
		Contents:          contents,
		GenerationConfig: &generationConfig{
			Temperature:    &temp,
			ThinkingConfig: c.g.thinkingConfig(),
		},
	}
	reply, err := c.g.stream(ctx, req, onChunk)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.history = append(c.history, user, geminiContent{Role: "model", Parts: []geminiPart{{Text: reply}}})
	c.mu.Unlock()
	return nil
}
