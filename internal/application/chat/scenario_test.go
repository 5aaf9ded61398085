package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbc-curriculum-chatbot/internal/application/chat"
	"cbc-curriculum-chatbot/internal/application/retrieval"
	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/infrastructure/embedding"
	"cbc-curriculum-chatbot/internal/infrastructure/llm"
	"cbc-curriculum-chatbot/internal/infrastructure/persistence/chroma"
)

const (
	chromaBase    = "/api/v2/tenants/t1/databases/d1"
	mandatoryText = "Mandatory: Mathematics, Physics, Chemistry"
	modelAnswer   = "Engineering under the STEM pathway requires Mathematics, Physics and Chemistry."
)

// curriculumUpstream 在同一个测试服务器上模拟 embedding、Chroma 与 chat completions
type curriculumUpstream struct {
	mu           sync.Mutex
	embedInputs  []string
	queryVectors int
	systemPrompt string
	llmCalls     int
}

func (u *curriculumUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case r.URL.Path == "/embed":
		var req struct {
			Inputs []string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.embedInputs = append(u.embedInputs, req.Inputs...)
		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = []float32{float32(i) + 0.5, 0.25}
		}
		_ = json.NewEncoder(w).Encode(vectors)

	case r.URL.Path == chromaBase+"/collections" && r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`[{"id":"c-1","name":"Curriculumnpdfs"}]`))

	case r.URL.Path == chromaBase+"/collections/c-1/query":
		var req struct {
			QueryEmbeddings [][]float32 `json:"query_embeddings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.queryVectors = len(req.QueryEmbeddings)
		groups := make([]string, len(req.QueryEmbeddings))
		for i := range groups {
			groups[i] = `["` + mandatoryText + `"]`
		}
		ids := strings.Repeat(`["f-1"],`, len(groups))
		_, _ = w.Write([]byte(`{"ids":[` + strings.TrimSuffix(ids, ",") + `],"documents":[` + strings.Join(groups, ",") + `]}`))

	case r.URL.Path == "/v1/chat/completions":
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.llmCalls++
		u.systemPrompt = req.Messages[0].Content
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"llama-3.3-70b-versatile",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + modelAnswer + `"}}]}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestReply_EndToEnd(t *testing.T) {
	t.Run("Should answer from retrieved fragments through the first configured backend", func(t *testing.T) {
		upstream := &curriculumUpstream{}
		srv := httptest.NewServer(upstream)
		defer srv.Close()

		embedder := embedding.NewClient(&config.EmbeddingConfig{Endpoint: srv.URL + "/embed", Token: "hf_live", Timeout: 2 * time.Second})
		store := chroma.NewClient(&config.ChromaConfig{Host: srv.URL, APIKey: "ck-live", Tenant: "t1", Database: "d1", Timeout: 2 * time.Second})
		retrievalCfg := &config.RetrievalConfig{NResults: 10, BroadNResults: 15, MaxKeywords: 4, MinWordLength: 4, FollowUpMaxWords: 3, FingerprintLength: 50, MaxVariants: 8}
		retriever := retrieval.NewRetriever(embedder, store, &config.VectorConfig{Collection: "Curriculumnpdfs"}, retrievalCfg)

		backend := llm.NewOpenAIBackend("groq", config.ProviderConfig{
			APIKey: "gsk_live", BaseURL: srv.URL + "/v1", Model: "llama-3.3-70b-versatile",
			MaxTokens: 1500, Temperature: 0.2, Timeout: 2 * time.Second,
		})
		unconfigured := llm.NewOpenAIBackend("openrouter", config.ProviderConfig{BaseURL: srv.URL + "/v1", Model: "unused"})

		orchestrator := chat.NewOrchestrator(retriever, []chat.Backend{unconfigured, backend},
			&config.ChatConfig{Timezone: "Africa/Nairobi", GreetingMaxTokens: 3}, retrievalCfg)

		const question = "What subjects are mandatory for engineering?"
		res := orchestrator.Reply(context.Background(), []entity.Turn{{Role: entity.RoleUser, Content: question}})

		assert.Equal(t, modelAnswer, res.Content)
		assert.Equal(t, "groq", res.Backend)
		assert.True(t, res.ContextUsed)

		upstream.mu.Lock()
		defer upstream.mu.Unlock()
		require.NotEmpty(t, upstream.embedInputs)
		assert.Equal(t, question, upstream.embedInputs[0])
		assert.Equal(t, len(upstream.embedInputs), upstream.queryVectors)
		assert.Equal(t, 1, upstream.llmCalls)
		assert.Equal(t, 1, strings.Count(upstream.systemPrompt, mandatoryText))
		assert.Contains(t, upstream.systemPrompt, "RETRIEVED DATA:\n"+mandatoryText)
	})
}
