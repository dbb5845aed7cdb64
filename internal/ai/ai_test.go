package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfslicer/internal/config"
)

func TestParseAnalysis(t *testing.T) {
	a, err := ParseAnalysis(`{"summary":"A chart","keywords":["a","b","c","d","e","f","g"]}`)
	require.NoError(t, err)
	assert.Equal(t, "A chart", a.Summary)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, a.Keywords)

	a, err = ParseAnalysis("```json\n{\"summary\":\"fenced\",\"keywords\":[\"x\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, "fenced", a.Summary)

	a, err = ParseAnalysis(`Sure! Here it is: {"summary":"prose","keywords":[]} hope it helps`)
	require.NoError(t, err)
	assert.Equal(t, "prose", a.Summary)
	assert.NotNil(t, a.Keywords)

	_, err = ParseAnalysis("")
	assert.Error(t, err)
	_, err = ParseAnalysis(`{"keywords":["x"]}`)
	assert.Error(t, err)
	_, err = ParseAnalysis("no json here")
	assert.Error(t, err)
	_, err = ParseAnalysis(`{"summary":"x","keywords":[1,2]}`)
	assert.Error(t, err)
	_, err = ParseAnalysis(`{"summary":"","keywords":[]}`)
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&HTTPError{StatusCode: 503}))
	assert.True(t, IsTransient(&HTTPError{StatusCode: 429}))
	assert.True(t, IsRateLimited(fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: 429})))
	assert.False(t, IsTransient(&HTTPError{StatusCode: 400}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.False(t, IsTransient(ErrContentRefused))
	assert.False(t, IsTransient(nil))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(context.Background(), config.ProviderConfig{Provider: "gemini"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := NewClient(context.Background(), config.ProviderConfig{Provider: "openai", OpenAIAPIKey: "k", OpenAIModel: "m"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
	assert.Equal(t, "m", c.Model())

	c, err = NewClient(context.Background(), config.ProviderConfig{Provider: "anthropic", AnthropicAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = NewClient(context.Background(), config.ProviderConfig{Provider: "mystery", GeminiAPIKey: "k"})
	assert.Error(t, err)
}

func TestOpenAIClientSendsImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req openAIChatReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		img := req.Messages[0].Content[0]["image_url"].(map[string]interface{})
		assert.Equal(t, "data:image/png;base64,QUJD", img["url"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"summary\":\"s\",\"keywords\":[\"k\"]}"}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", "").WithBaseURL(srv.URL)
	resp, err := c.Do(context.Background(), Request{ImageBase64: "QUJD"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TokensIn)

	a, err := ParseAnalysis(resp.Text)
	require.NoError(t, err)
	assert.Equal(t, "s", a.Summary)
}

func TestOpenAIClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("key", "").WithBaseURL(srv.URL).Do(context.Background(), Request{ImageBase64: "QUJD"})
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 429, he.StatusCode)
	assert.True(t, IsRateLimited(err))
}

func TestAnthropicClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		var req anthropicMsgReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "QUJD", req.Messages[0].Content[0].Source.Data)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"summary\":\"a\",\"keywords\":[]}"}],"usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer srv.Close()

	resp, err := NewAnthropicClient("key", "").WithBaseURL(srv.URL).Do(context.Background(), Request{ImageBase64: "QUJD"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TokensOut)
	assert.Contains(t, resp.Text, `"summary":"a"`)
}

func TestMissingKeys(t *testing.T) {
	_, err := NewOpenAIClient("", "").Do(context.Background(), Request{})
	assert.Error(t, err)
	_, err = NewAnthropicClient("", "").Do(context.Background(), Request{})
	assert.Error(t, err)
	_, err = NewGemini(context.Background(), "", "")
	assert.Error(t, err)
}
