package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	encoded, _ := json.Marshal(content)
	return `{
		"id":"chatcmpl-1",
		"object":"chat.completion",
		"created":1730366400,
		"model":"gpt-4o-mini",
		"choices":[{"index":0,"finish_reason":"stop","logprobs":null,
			"message":{"role":"assistant","content":` + string(encoded) + `}}],
		"usage":{"prompt_tokens":10,"completion_tokens":12,"total_tokens":22}
	}`
}

func testConfig(baseURL string) *Config {
	temp := 0.1
	return &Config{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		DefaultModel: "decision",
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		LogLevel:     "error",
		Models: map[string]ModelConfig{
			"decision": {ModelName: "gpt-4o-mini", Temperature: &temp},
		},
	}
}

func TestClientChat(t *testing.T) {
	var (
		mu       sync.Mutex
		lastBody map[string]any
		lastPath string
		calls    int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		lastPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &lastBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("  Hello from test  ")))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello from test", resp.Content())
	require.Equal(t, 22, resp.Usage.TotalTokens)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
	require.Equal(t, "/chat/completions", lastPath)
	require.Equal(t, "gpt-4o-mini", lastBody["model"])
	require.InDelta(t, 0.1, lastBody["temperature"], 1e-9)
	require.Len(t, lastBody["messages"], 2)
}

func TestClientChatRetriesServerErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL),
		WithHTTPClient(server.Client()),
		WithRetrier(NewRetrier(RetryPolicy{Retries: 2, BaseDelay: time.Millisecond})),
	)
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls)
}

func TestClientChatStructured(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"operation":"Buy","symbol":"BTC","position":{"entry_price":100000,"leverage":5},"tags":[]}`)))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, err)

	var out schemaDecision
	resp, err := client.ChatStructured(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "decide"}},
	}, &out)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "Buy", out.Operation)
	require.NotNil(t, out.Position)
	require.InDelta(t, 100000, *out.Position.EntryPrice, 1e-9)

	format := captured["response_format"].(map[string]any)
	require.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	require.Equal(t, "schemadecision", schema["name"])
	require.Equal(t, true, schema["strict"])
}

func TestClientChatRetriesEmptyCompletion(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","object":"chat.completion","created":1730366400,"model":"gpt-4o-mini","choices":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL),
		WithHTTPClient(server.Client()),
		WithRetrier(NewRetrier(RetryPolicy{Retries: 1, BaseDelay: time.Millisecond})),
	)
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.ErrorIs(t, err, ErrEmptyResponse)
	require.ErrorContains(t, err, "after 2 attempts")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls)
}

func TestClientChatStructuredRejectsBadTarget(t *testing.T) {
	client, err := NewClient(testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = client.ChatStructured(context.Background(), &ChatRequest{Messages: []Message{{Content: "x"}}}, nil)
	require.Error(t, err)
	var out schemaDecision
	_, err = client.ChatStructured(context.Background(), &ChatRequest{Messages: []Message{{Content: "x"}}}, out)
	require.ErrorContains(t, err, "pointer")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	cfg := testConfig("http://localhost")
	cfg.APIKey = ""
	_, err = NewClient(cfg)
	require.ErrorContains(t, err, "api_key")
}

func TestBuildChatParamsRequiresMessages(t *testing.T) {
	client, err := NewClient(testConfig("http://localhost"))
	require.NoError(t, err)
	_, _, err = client.buildChatParams(&ChatRequest{})
	require.Error(t, err)
}
