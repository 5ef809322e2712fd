package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderComplete(t *testing.T) {
	var (
		gotBody    map[string]any
		gotReferer string
		gotTitle   string
		gotAuth    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"model": "deepseek/deepseek-chat-v3-0324",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": " A flight means freedom. "}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Referer: "https://sonnik.app", Title: "Sonnik"})
	text, err := p.Complete(context.Background(), CompletionRequest{
		Model:       "deepseek/deepseek-chat-v3-0324",
		Messages:    []Turn{{Role: RoleSystem, Content: "persona"}, {Role: RoleUser, Content: "I flew"}},
		MaxTokens:   1000,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "A flight means freedom.", text)

	assert.Equal(t, "https://sonnik.app", gotReferer)
	assert.Equal(t, "Sonnik", gotTitle)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "deepseek/deepseek-chat-v3-0324", gotBody["model"])
	assert.EqualValues(t, 1000, gotBody["max_tokens"])
	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIProviderSendsZeroTemperature(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	_, err := p.Complete(context.Background(), CompletionRequest{
		Model:       "m",
		Messages:    []Turn{{Role: RoleUser, Content: "x"}},
		Temperature: 0,
	})
	require.NoError(t, err)

	require.Contains(t, gotBody, "temperature")
	assert.InDelta(t, 0, gotBody["temperature"], 1e-6)
}

func TestOpenAIProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{name: "server error", status: http.StatusInternalServerError, payload: `{"error":{"message":"boom"}}`},
		{name: "no choices", status: http.StatusOK, payload: `{"choices":[]}`},
		{name: "malformed body", status: http.StatusOK, payload: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"})
			_, err := p.Complete(context.Background(), CompletionRequest{
				Model:    "m",
				Messages: []Turn{{Role: RoleUser, Content: "x"}},
			})
			assert.Error(t, err)
		})
	}
}

func TestGeneratorWithFailingOpenAIEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGenerator(NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"}), Config{}, nil, nil)
	reply := g.Reply(context.Background(), ReplyInput{User: testUser(), Message: "I flew"})
	assert.Equal(t, SourceFallback, reply.Source)
	assert.NotEmpty(t, reply.Text)
}
