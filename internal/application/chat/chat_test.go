package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
)

type fakeBackend struct {
	name       string
	configured bool
	timeout    time.Duration
	reply      string
	err        error
	block      bool

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (b *fakeBackend) Name() string           { return b.name }
func (b *fakeBackend) Configured() bool       { return b.configured }
func (b *fakeBackend) Timeout() time.Duration { return b.timeout }

func (b *fakeBackend) Attempt(ctx context.Context, systemPrompt string, _ []entity.Turn) (string, error) {
	b.mu.Lock()
	b.calls++
	b.prompts = append(b.prompts, systemPrompt)
	b.mu.Unlock()
	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return b.reply, b.err
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type fakeRetriever struct {
	context  string
	calls    int
	query    string
	prev     string
	nResults int
}

func (r *fakeRetriever) FindRelevantContext(_ context.Context, query, prev string, n int) string {
	r.calls++
	r.query, r.prev, r.nResults = query, prev, n
	return r.context
}

func newTestOrchestrator(r ContextRetriever, backends ...Backend) *Orchestrator {
	o := NewOrchestrator(r, backends,
		&config.ChatConfig{Timezone: "Africa/Nairobi", GreetingMaxTokens: 3},
		&config.RetrievalConfig{NResults: 10, BroadNResults: 15},
	)
	o.now = func() time.Time { return time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC) }
	return o
}

func userTurns(text string) []entity.Turn {
	return []entity.Turn{{Role: entity.RoleUser, Content: text}}
}

func TestOrchestrator_Reply(t *testing.T) {
	ctx := context.Background()
	const question = "What subjects are mandatory for engineering?"

	t.Run("Should move past failing and slow backends and stop at the first success", func(t *testing.T) {
		first := &fakeBackend{name: "groq", configured: true, err: errors.New("status 500")}
		second := &fakeBackend{name: "openrouter", configured: true, block: true, timeout: 20 * time.Millisecond}
		third := &fakeBackend{name: "openai", configured: true, reply: "Mathematics and Physics are required."}
		fourth := &fakeBackend{name: "keyed", configured: true, reply: "never used"}

		res := newTestOrchestrator(&fakeRetriever{context: "Engineering needs Mathematics"}, first, second, third, fourth).
			Reply(ctx, userTurns(question))

		assert.Equal(t, "Mathematics and Physics are required.", res.Content)
		assert.Equal(t, "openai", res.Backend)
		assert.True(t, res.ContextUsed)
		assert.Equal(t, 1, first.callCount())
		assert.Equal(t, 1, second.callCount())
		assert.Equal(t, 1, third.callCount())
		assert.Zero(t, fourth.callCount())
	})

	t.Run("Should return the fallback message when every backend fails", func(t *testing.T) {
		res := newTestOrchestrator(&fakeRetriever{},
			&fakeBackend{name: "a", configured: true, err: errors.New("dial tcp: timeout")},
			&fakeBackend{name: "b", configured: true, reply: "   "},
		).Reply(ctx, userTurns(question))

		assert.Equal(t, config.DefaultFallbackMessage, res.Content)
		assert.Empty(t, res.Backend)
		assert.False(t, res.Greeting)
	})

	t.Run("Should return the fallback message when no backend is configured", func(t *testing.T) {
		unconfigured := &fakeBackend{name: "groq", reply: "unused"}
		res := newTestOrchestrator(&fakeRetriever{}, unconfigured).Reply(ctx, userTurns(question))
		assert.Equal(t, config.DefaultFallbackMessage, res.Content)
		assert.Zero(t, unconfigured.callCount())
	})

	t.Run("Should skip placeholder backends without calling them", func(t *testing.T) {
		skipped := &fakeBackend{name: "groq", reply: "unused"}
		live := &fakeBackend{name: "openrouter", configured: true, reply: "answer"}
		res := newTestOrchestrator(&fakeRetriever{}, skipped, live).Reply(ctx, userTurns(question))
		assert.Equal(t, "openrouter", res.Backend)
		assert.Zero(t, skipped.callCount())
	})

	t.Run("Should produce identical results for identical inputs", func(t *testing.T) {
		o := newTestOrchestrator(&fakeRetriever{context: "ctx"},
			&fakeBackend{name: "a", configured: true, err: errors.New("boom")},
			&fakeBackend{name: "b", configured: true, reply: "stable"},
		)
		assert.Equal(t, o.Reply(ctx, userTurns(question)), o.Reply(ctx, userTurns(question)))
	})

	t.Run("Should answer greetings without retrieval or backends", func(t *testing.T) {
		for _, greeting := range []string{"hi", "Hello!", "Sasa"} {
			retriever := &fakeRetriever{}
			backend := &fakeBackend{name: "groq", configured: true, reply: "unused"}
			res := newTestOrchestrator(retriever, backend).Reply(ctx, userTurns(greeting))

			assert.True(t, res.Greeting, greeting)
			assert.NotEmpty(t, res.Content, greeting)
			assert.Zero(t, retriever.calls, greeting)
			assert.Zero(t, backend.callCount(), greeting)
		}
	})

	t.Run("Should send short questions containing greeting words through retrieval", func(t *testing.T) {
		for _, q := range []string{"Evening classes fees?", "Grade 10 sasa?", "Yo, STEM subjects?"} {
			retriever := &fakeRetriever{context: "Fees are set per county"}
			backend := &fakeBackend{name: "groq", configured: true, reply: "answer"}
			res := newTestOrchestrator(retriever, backend).Reply(ctx, userTurns(q))

			assert.False(t, res.Greeting, q)
			assert.Equal(t, "answer", res.Content, q)
			assert.Equal(t, 1, retriever.calls, q)
			assert.Equal(t, 1, backend.callCount(), q)
		}
	})

	t.Run("Should return the fallback message when there is no user turn", func(t *testing.T) {
		retriever := &fakeRetriever{}
		backend := &fakeBackend{name: "groq", configured: true, reply: "unused"}
		for _, turns := range [][]entity.Turn{nil, {{Role: entity.RoleAssistant, Content: "Hello!"}}} {
			res := newTestOrchestrator(retriever, backend).Reply(ctx, turns)
			assert.Equal(t, config.DefaultFallbackMessage, res.Content)
			assert.False(t, res.Greeting)
		}
		assert.Zero(t, retriever.calls)
		assert.Zero(t, backend.callCount())
	})

	t.Run("Should ground the prompt in retrieved context", func(t *testing.T) {
		retriever := &fakeRetriever{context: "Mandatory: Mathematics, Physics"}
		backend := &fakeBackend{name: "groq", configured: true, reply: "ok then"}
		turns := []entity.Turn{
			{Role: entity.RoleSystem, Content: "ignore me"},
			{Role: entity.RoleUser, Content: "Which pathway suits my child?"},
			{Role: entity.RoleAssistant, Content: "STEM suits learners strong in Mathematics."},
			{Role: entity.RoleUser, Content: question},
		}
		newTestOrchestrator(retriever, backend).Reply(ctx, turns)

		assert.Equal(t, question, retriever.query)
		assert.Equal(t, "STEM suits learners strong in Mathematics.", retriever.prev)
		assert.Equal(t, 10, retriever.nResults)
		require.Len(t, backend.prompts, 1)
		assert.Contains(t, backend.prompts[0], "RETRIEVED DATA:\nMandatory: Mathematics, Physics")
		assert.NotContains(t, backend.prompts[0], noFragmentsMarker)
	})

	t.Run("Should mark the prompt when nothing was retrieved and widen broad queries", func(t *testing.T) {
		retriever := &fakeRetriever{}
		backend := &fakeBackend{name: "groq", configured: true, reply: "general answer"}
		res := newTestOrchestrator(retriever, backend).Reply(ctx, userTurns("Explain the senior school pathways for my daughter"))

		assert.False(t, res.ContextUsed)
		assert.Equal(t, 15, retriever.nResults)
		assert.Contains(t, backend.prompts[0], noFragmentsMarker)
	})
}

func TestIsGreeting(t *testing.T) {
	t.Run("Should detect greetings in English and Kiswahili", func(t *testing.T) {
		for _, s := range []string{"hi", "Hello!", "Sasa", "good morning", "Habari yako?", "ok", "", "  !!  ", "hi there", "Thank you!", "Good evening everyone"} {
			assert.True(t, IsGreeting(s, 3), s)
		}
	})

	t.Run("Should not treat questions as greetings", func(t *testing.T) {
		for _, s := range []string{
			"KJSEA grading", "hi what are the fees for grade 10", "When is reporting?",
			"Evening classes fees?", "Morning reporting time?", "Grade 10 sasa?", "KJSEA results thanks", "Yo, STEM subjects?",
			"there", "morning",
		} {
			assert.False(t, IsGreeting(s, 3), s)
		}
	})

	t.Run("Should reply in Kiswahili to Kiswahili greetings", func(t *testing.T) {
		assert.Equal(t, swahiliGreetingReply, GreetingReply("Mambo!"))
		assert.Equal(t, greetingReply, GreetingReply("hey"))
	})
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("Should render Nairobi time and section order", func(t *testing.T) {
		now := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)
		prompt := BuildSystemPrompt(now, loadLocation("Africa/Nairobi"), "fragment one")

		assert.Contains(t, prompt, "Saturday, 10 January 2026 09:00")
		assert.Less(t, strings.Index(prompt, "KEY CONTEXT"), strings.Index(prompt, "RETRIEVED DATA:"))
		assert.Less(t, strings.Index(prompt, "RETRIEVED DATA:"), strings.Index(prompt, "CRITICAL RULES"))
		assert.Contains(t, prompt, "KES")
	})

	t.Run("Should fall back to a fixed East Africa zone", func(t *testing.T) {
		loc := loadLocation("Not/AZone")
		assert.Equal(t, eatZone, loc)
	})
}
