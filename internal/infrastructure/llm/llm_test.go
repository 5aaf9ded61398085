package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
)

func TestExtractText(t *testing.T) {
	t.Run("Should read every supported response shape", func(t *testing.T) {
		cases := map[string]string{
			`{"choices":[{"message":{"role":"assistant","content":" chat shape "}}]}`: "chat shape",
			`{"choices":[{"text":"completion shape"}]}`:                               "completion shape",
			`{"output":"plain output"}`:                                               "plain output",
			`{"output":{"text":"nested output"}}`:                                     "nested output",
			`{"output":[{"content":[{"type":"output_text","text":"responses shape"}]}]}`: "responses shape",
			`{"message":"bare message"}`:                                              "bare message",
			`{"message":{"role":"assistant","content":"message object"}}`:             "message object",
		}
		for body, want := range cases {
			got, err := ExtractText([]byte(body))
			require.NoError(t, err, body)
			assert.Equal(t, want, got)
		}
	})

	t.Run("Should prefer earlier paths when several match", func(t *testing.T) {
		got, err := ExtractText([]byte(`{"choices":[{"message":{"content":"first"}}],"output":"second"}`))
		require.NoError(t, err)
		assert.Equal(t, "first", got)
	})

	t.Run("Should reject bodies without text", func(t *testing.T) {
		for _, body := range []string{`{"choices":[]}`, `{"message":{"content":"  "}}`, `not json`, `{"output":42}`} {
			_, err := ExtractText([]byte(body))
			assert.ErrorIs(t, err, ErrUnparseableResponse, body)
		}
	})
}

var testTurns = []entity.Turn{
	{Role: entity.RoleSystem, Content: "client supplied"},
	{Role: entity.RoleUser, Content: "What is CBE?"},
	{Role: entity.RoleAssistant, Content: "Competency Based Education."},
	{Role: entity.RoleUser, Content: "And Grade 10?"},
}

func TestKeyedBackend_Attempt(t *testing.T) {
	t.Run("Should send key, model and messages with the system prompt first", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req keyedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "live-key", req.Key)
			assert.Equal(t, "model-x", req.ModelID)
			assert.InDelta(t, 0.2, req.Temp, 1e-9)
			require.Len(t, req.Messages, 4)
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "SYS", req.Messages[0].Content)
			assert.Equal(t, "And Grade 10?", req.Messages[3].Content)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"output":{"text":"Grade 10 starts in January."}}`))
		}))
		defer srv.Close()

		b := NewKeyedBackend("keyed", config.ProviderConfig{APIKey: "live-key", BaseURL: srv.URL, Model: "model-x", Temperature: 0.2, Timeout: time.Second})
		require.True(t, b.Configured())
		text, err := b.Attempt(context.Background(), "SYS", testTurns)
		require.NoError(t, err)
		assert.Equal(t, "Grade 10 starts in January.", text)
	})

	t.Run("Should treat non 2xx as failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		b := NewKeyedBackend("keyed", config.ProviderConfig{APIKey: "live-key", BaseURL: srv.URL})
		_, err := b.Attempt(context.Background(), "SYS", testTurns)
		assert.Error(t, err)
	})

	t.Run("Should not be configured with a placeholder key", func(t *testing.T) {
		b := NewKeyedBackend("keyed", config.ProviderConfig{APIKey: "your_key_here", BaseURL: "http://example.invalid"})
		assert.False(t, b.Configured())
		_, err := b.Attempt(context.Background(), "SYS", testTurns)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestOpenAIBackend_Attempt(t *testing.T) {
	t.Run("Should call chat completions and extract the reply", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer gsk_live", r.Header.Get("Authorization"))

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama-3.3-70b-versatile", req["model"])
			msgs := req["messages"].([]any)
			require.Len(t, msgs, 4)
			assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"llama","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Mandatory subjects are Maths and English."}}]}`))
		}))
		defer srv.Close()

		b := NewOpenAIBackend("groq", config.ProviderConfig{
			APIKey: "gsk_live", BaseURL: srv.URL, Model: "llama-3.3-70b-versatile",
			MaxTokens: 1500, Temperature: 0.2, Timeout: 2 * time.Second,
		})
		text, err := b.Attempt(context.Background(), "SYS", testTurns)
		require.NoError(t, err)
		assert.Equal(t, "Mandatory subjects are Maths and English.", text)
	})

	t.Run("Should surface server errors without retrying", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		b := NewOpenAIBackend("groq", config.ProviderConfig{APIKey: "gsk_live", BaseURL: srv.URL, Model: "m"})
		_, err := b.Attempt(context.Background(), "SYS", testTurns)
		assert.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestFactory_Backends(t *testing.T) {
	t.Run("Should follow the fallback chain order and skip unknown names", func(t *testing.T) {
		cfg := &config.Config{LLM: config.LLMConfig{
			FallbackChain: []string{"groq", "missing", "keyed", "openai"},
			Providers: map[string]config.ProviderConfig{
				"groq":   {Kind: KindOpenAI, APIKey: "gsk", Model: "m"},
				"keyed":  {Kind: KindKeyed, APIKey: "k", BaseURL: "http://example.invalid"},
				"openai": {Kind: KindOpenAI, APIKey: "", Model: "gpt"},
			},
		}}
		backends := NewFactory(cfg).Backends()
		require.Len(t, backends, 3)
		assert.Equal(t, "groq", backends[0].Name())
		assert.Equal(t, "keyed", backends[1].Name())
		assert.Equal(t, "openai", backends[2].Name())
		assert.True(t, backends[0].Configured())
		assert.False(t, backends[2].Configured())
	})
}
