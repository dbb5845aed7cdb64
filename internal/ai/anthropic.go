package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const anthropicBaseURL = "https://api.anthropic.com/v1"

type AnthropicClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &AnthropicClient{http: &http.Client{}, apiKey: apiKey, model: model, baseURL: anthropicBaseURL}
}

// WithBaseURL points the client at a compatible endpoint.
func (c *AnthropicClient) WithBaseURL(u string) *AnthropicClient { c.baseURL = u; return c }

func (c *AnthropicClient) Name() string  { return "anthropic" }
func (c *AnthropicClient) Model() string { return c.model }

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicMsgReq struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMsgResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, errors.New("missing ANTHROPIC_API_KEY")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = AnalysisPrompt
	}
	mt := req.ImageMIME
	if mt == "" {
		mt = "image/png"
	}

	payload := anthropicMsgReq{Model: model, MaxTokens: 1024}
	payload.Messages = []anthropicMessage{{
		Role: "user",
		Content: []anthropicBlock{
			{Type: "image", Source: &anthropicSource{Type: "base64", MediaType: mt, Data: req.ImageBase64}},
			{Type: "text", Text: prompt + ` Reply with only a JSON object {"summary": string, "keywords": [string]}.`},
		},
	}}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Body: trimBody(b), Provider: "anthropic"}
	}
	var r anthropicMsgResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Response{}, err
	}
	if r.StopReason == "refusal" {
		return Response{}, ErrContentRefused
	}
	for _, b := range r.Content {
		if b.Type == "text" || b.Type == "" {
			return Response{Text: b.Text, TokensIn: r.Usage.InputTokens, TokensOut: r.Usage.OutputTokens}, nil
		}
	}
	return Response{}, errors.New("no content")
}
