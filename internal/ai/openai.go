package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const openAIBaseURL = "https://api.openai.com/v1"

type OpenAIClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &OpenAIClient{http: &http.Client{}, apiKey: apiKey, model: model, baseURL: openAIBaseURL}
}

// WithBaseURL points the client at a compatible endpoint.
func (c *OpenAIClient) WithBaseURL(u string) *OpenAIClient { c.baseURL = u; return c }

func (c *OpenAIClient) Name() string  { return "openai" }
func (c *OpenAIClient) Model() string { return c.model }

type openAIMessage struct {
	Role    string                   `json:"role"`
	Content []map[string]interface{} `json:"content"`
}

type openAIChatReq struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, errors.New("missing OPENAI_API_KEY")
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

	userContent := []map[string]interface{}{
		{
			"type":      "image_url",
			"image_url": map[string]string{"url": fmt.Sprintf("data:%s;base64,%s", mt, req.ImageBase64)},
		},
		{
			"type": "text",
			"text": prompt + ` Respond with a JSON object {"summary": string, "keywords": [string]}.`,
		},
	}

	payload := openAIChatReq{
		Model:          model,
		Messages:       []openAIMessage{{Role: "user", Content: userContent}},
		Temperature:    0,
		MaxTokens:      1024,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Body: trimBody(b), Provider: "openai"}
	}

	var r openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Response{}, err
	}
	if len(r.Choices) == 0 {
		return Response{}, errors.New("no choices")
	}
	if r.Choices[0].Message.Refusal != "" {
		return Response{}, fmt.Errorf("%w: %s", ErrContentRefused, r.Choices[0].Message.Refusal)
	}

	return Response{
		Text:      r.Choices[0].Message.Content,
		TokensIn:  r.Usage.PromptTokens,
		TokensOut: r.Usage.CompletionTokens,
	}, nil
}
