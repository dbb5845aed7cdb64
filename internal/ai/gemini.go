package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	genai "google.golang.org/genai"
)

const defaultGeminiModel = "gemini-3-flash-preview"

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini returns a Gemini client using the Gemini API backend.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: c, model: model}, nil
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

// analysisSchema mirrors Analysis.
var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary":  {Type: genai.TypeString},
		"keywords": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"summary", "keywords"},
}

func (g *Gemini) Do(ctx context.Context, req Request) (Response, error) {
	img, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return Response{}, fmt.Errorf("decode image: %w", err)
	}
	mt := req.ImageMIME
	if mt == "" {
		mt = "image/png"
	}
	model := req.Model
	if model == "" {
		model = g.model
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = AnalysisPrompt
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	content := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mt, Data: img}},
			{Text: prompt},
		},
	}}
	res, err := g.client.Models.GenerateContent(ctx, model, content, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema,
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Response{}, &HTTPError{StatusCode: apiErr.Code, Body: apiErr.Message, Provider: "gemini"}
		}
		return Response{}, fmt.Errorf("gemini API call failed: %w", err)
	}

	out := Response{Text: res.Text()}
	if res.UsageMetadata != nil {
		out.TokensIn = int(res.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(res.UsageMetadata.CandidatesTokenCount)
	}
	if out.Text == "" {
		return out, errors.New("empty response from Gemini")
	}
	return out, nil
}
