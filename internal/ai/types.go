package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/local/pdfslicer/internal/config"
)

// AnalysisPrompt is sent with every page image.
const AnalysisPrompt = "Analyze this slide/page. Provide a brief summary and exactly 5 relevant keywords. Return as JSON."

// MaxKeywords is the number of keywords kept from a response.
const MaxKeywords = 5

// Request is a single page analysis request.
type Request struct {
	Model       string
	Timeout     time.Duration
	ImageBase64 string // Base64 encoded image, no data URI prefix
	ImageMIME   string // image/png unless detected otherwise
	Prompt      string
}

// Response is the raw provider reply.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client is implemented by Gemini, OpenAI and Anthropic.
type Client interface {
	Name() string
	Model() string
	Do(ctx context.Context, req Request) (Response, error)
}

// Analysis is the JSON object providers are asked for.
type Analysis struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// ErrNotConfigured is returned when the selected provider has no API key.
var ErrNotConfigured = errors.New("API key not configured")

// NewClient builds the provider selected by AI_PROVIDER.
func NewClient(ctx context.Context, cfg config.ProviderConfig) (Client, error) {
	if strings.TrimSpace(cfg.APIKey()) == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "anthropic":
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	case "", "gemini":
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// analysisJSONSchema is checked against every provider reply.
const analysisJSONSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "keywords": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["summary"]
}`

var (
	schemaOnce      sync.Once
	analysisSchemaC *jsonschema.Schema
	schemaErr       error
)

func compiledAnalysisSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("analysis.json", strings.NewReader(analysisJSONSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to load analysis schema: %w", err)
			return
		}
		analysisSchemaC, schemaErr = compiler.Compile("analysis.json")
	})
	return analysisSchemaC, schemaErr
}

// ParseAnalysis decodes provider text into an Analysis. Code fences and
// leading prose are tolerated; the object must carry a non-empty summary.
func ParseAnalysis(text string) (Analysis, error) {
	var out Analysis
	js := stripCodeFences(text)
	if js == "" {
		return out, errors.New("empty response from model")
	}
	var doc any
	if err := json.Unmarshal([]byte(js), &doc); err != nil {
		s := findFirstJSON(js)
		if s == "" {
			return out, fmt.Errorf("no JSON found in model response: %w", err)
		}
		if err2 := json.Unmarshal([]byte(s), &doc); err2 != nil {
			return out, fmt.Errorf("failed to parse model response as JSON: %w (original error: %v)", err2, err)
		}
		js = s
	}

	schema, err := compiledAnalysisSchema()
	if err != nil {
		return out, err
	}
	if err := schema.Validate(doc); err != nil {
		return out, fmt.Errorf("model response does not match schema: %w", err)
	}
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		return out, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return out, errors.New("model response has no summary")
	}
	if len(out.Keywords) > MaxKeywords {
		out.Keywords = out.Keywords[:MaxKeywords]
	}
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	return out, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl != -1 {
			s = s[nl+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// findFirstJSON returns the first balanced {...} object in s.
func findFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
