package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbc-curriculum-chatbot/internal/config"
	"cbc-curriculum-chatbot/internal/domain/entity"
	"cbc-curriculum-chatbot/internal/domain/repository"
)

type fakeEmbedder struct {
	calls        int
	inputs       []string
	err          error
	empty        bool
	unconfigured bool
}

func (f *fakeEmbedder) Configured() bool { return !f.unconfigured }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.inputs = append([]string(nil), texts...)
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type fakeStore struct {
	groups     [][]entity.Fragment
	queryErr   error
	resolveErr error
	topK       int
	vectors    int
}

func (s *fakeStore) ResolveCollection(context.Context, string) (repository.CollectionID, error) {
	return "c-1", s.resolveErr
}

func (s *fakeStore) Query(_ context.Context, _ repository.CollectionID, vectors [][]float32, topK int) ([][]entity.Fragment, error) {
	s.topK = topK
	s.vectors = len(vectors)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.groups, nil
}

func (s *fakeStore) Upsert(context.Context, repository.CollectionID, entity.UpsertBatch) error { return nil }
func (s *fakeStore) Count(context.Context, repository.CollectionID) (int, error) { return 0, nil }
func (s *fakeStore) HealthCheck(context.Context) error { return nil }

func frags(texts ...string) []entity.Fragment {
	out := make([]entity.Fragment, len(texts))
	for i, t := range texts {
		out[i] = entity.Fragment{ID: t, Text: t}
	}
	return out
}

func newTestRetriever(e Embedder, s repository.VectorStore, fingerprint int) *Retriever {
	return NewRetriever(e, s,
		&config.VectorConfig{Collection: "Curriculumnpdfs"},
		&config.RetrievalConfig{NResults: 10, BroadNResults: 15, MaxKeywords: 4, MinWordLength: 4, FollowUpMaxWords: 3, FingerprintLength: fingerprint, MaxVariants: 8},
	)
}

func TestRetriever_FindRelevantContext(t *testing.T) {
	ctx := context.Background()

	t.Run("Should merge groups in variant order and drop duplicate fingerprints", func(t *testing.T) {
		store := &fakeStore{groups: [][]entity.Fragment{
			frags("Mandatory: Mathematics, Physics, Chemistry", "Engineering needs STEM"),
			frags("engineering   NEEDS stem", "Grade 10 reporting is on 12 January 2026"),
		}}
		emb := &fakeEmbedder{}
		got := newTestRetriever(emb, store, 100).FindRelevantContext(ctx, "What subjects are mandatory for engineering?", "", 0)

		assert.Equal(t, strings.Join([]string{
			"Mandatory: Mathematics, Physics, Chemistry",
			"Engineering needs STEM",
			"Grade 10 reporting is on 12 January 2026",
		}, FragmentDelimiter), got)
		assert.Equal(t, 1, emb.calls)
		assert.Equal(t, "What subjects are mandatory for engineering?", emb.inputs[0])
		assert.Equal(t, 10, store.topK)
		assert.Equal(t, len(emb.inputs), store.vectors)
	})

	t.Run("Should keep only the first of two fragments sharing a fifty char prefix", func(t *testing.T) {
		prefix := strings.Repeat("Senior school placement guidance for learners. ", 2)[:50]
		store := &fakeStore{groups: [][]entity.Fragment{frags(prefix+" first suffix", prefix+" second suffix")}}
		got := newTestRetriever(&fakeEmbedder{}, store, 50).FindRelevantContext(ctx, "placement", "", 5)
		assert.Equal(t, prefix+" first suffix", got)
		assert.Equal(t, 5, store.topK)
	})

	t.Run("Should collapse identical fragments into one", func(t *testing.T) {
		store := &fakeStore{groups: [][]entity.Fragment{frags("same", "same"), frags("same")}}
		got := newTestRetriever(&fakeEmbedder{}, store, 100).FindRelevantContext(ctx, "pathways", "", 0)
		assert.Equal(t, "same", got)
	})

	t.Run("Should return empty without embedding for an empty query", func(t *testing.T) {
		emb := &fakeEmbedder{}
		assert.Empty(t, newTestRetriever(emb, &fakeStore{}, 100).FindRelevantContext(ctx, "   ", "", 0))
		assert.Zero(t, emb.calls)
	})

	t.Run("Should return empty when embedding yields nothing", func(t *testing.T) {
		store := &fakeStore{groups: [][]entity.Fragment{frags("x")}}
		assert.Empty(t, newTestRetriever(&fakeEmbedder{empty: true}, store, 100).FindRelevantContext(ctx, "grading", "", 0))
		assert.Empty(t, newTestRetriever(&fakeEmbedder{err: errors.New("503")}, store, 100).FindRelevantContext(ctx, "grading", "", 0))
		assert.Empty(t, newTestRetriever(&fakeEmbedder{unconfigured: true}, store, 100).FindRelevantContext(ctx, "grading", "", 0))
	})

	t.Run("Should return empty when the store is unreachable", func(t *testing.T) {
		emb := &fakeEmbedder{}
		assert.Empty(t, newTestRetriever(emb, &fakeStore{queryErr: errors.New("dial tcp: refused")}, 100).FindRelevantContext(ctx, "grading", "", 0))
		assert.Empty(t, newTestRetriever(emb, &fakeStore{resolveErr: repository.ErrCollectionNotFound}, 100).FindRelevantContext(ctx, "grading", "", 0))
	})

	t.Run("Should be deterministic across calls", func(t *testing.T) {
		store := &fakeStore{groups: [][]entity.Fragment{frags("a1", "a2"), frags("b1", "a1")}}
		r := newTestRetriever(&fakeEmbedder{}, store, 100)
		first := r.FindRelevantContext(ctx, "stem pathway careers", "", 0)
		second := r.FindRelevantContext(ctx, "stem pathway careers", "", 0)
		require.NotEmpty(t, first)
		assert.Equal(t, first, second)
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("Should normalize case and whitespace before truncating", func(t *testing.T) {
		assert.Equal(t, Fingerprint("Grade  10\nPlacement", 100), Fingerprint("grade 10 placement", 100))
		assert.Equal(t, "grade", Fingerprint("  GRADE 10", 5))
		assert.Len(t, []rune(Fingerprint(strings.Repeat("é", 300), 0)), DefaultFingerprintLength)
	})
}

func TestBuildVariants(t *testing.T) {
	opts := VariantOptions{MaxKeywords: 4, MinWordLength: 4, FollowUpMaxWords: 3, MaxVariants: 8}

	t.Run("Should put the raw query first followed by content words", func(t *testing.T) {
		got := BuildVariants("  What subjects are mandatory for engineering?  ", "", opts)
		require.NotEmpty(t, got)
		assert.Equal(t, "What subjects are mandatory for engineering?", got[0])
		assert.Equal(t, []string{"subjects", "mandatory", "engineering"}, got[1:4])
	})

	t.Run("Should drop English and Swahili stop words", func(t *testing.T) {
		got := BuildVariants("tafadhali nieleze kuhusu shule", "", opts)
		assert.NotContains(t, got, "tafadhali")
		assert.NotContains(t, got, "kuhusu")
		assert.Contains(t, got, "nieleze")
		assert.Contains(t, got, "shule")
	})

	t.Run("Should cap content words", func(t *testing.T) {
		got := BuildVariants("alpha bravo charlie delta echoes foxtrot golfing", "", VariantOptions{MaxKeywords: 2, MaxVariants: 10})
		assert.Equal(t, []string{"alpha bravo charlie delta echoes foxtrot golfing", "alpha", "bravo"}, got)
	})

	t.Run("Should fold entities from the previous answer into short follow ups", func(t *testing.T) {
		prev := "Grade 10 learners report on 12 January 2026 under the Ministry Of Education guidelines."
		got := BuildVariants("when exactly?", prev, opts)
		var folded string
		for _, v := range got {
			if strings.HasPrefix(v, "when exactly? ") {
				folded = v
			}
		}
		require.NotEmpty(t, folded)
		assert.Contains(t, folded, "Grade 10")
		assert.Contains(t, folded, "12 January 2026")
	})

	t.Run("Should not fold context into long questions", func(t *testing.T) {
		got := BuildVariants("how are grade ten learners placed into schools", "Grade 10 placement happened in 2025.", opts)
		for _, v := range got {
			assert.NotContains(t, v, "2025")
		}
	})

	t.Run("Should append canonical phrases on domain triggers", func(t *testing.T) {
		got := BuildVariants("KJSEA score", "", opts)
		assert.Contains(t, got, "KJSEA assessment scoring and performance levels")
	})

	t.Run("Should cap the total and never duplicate", func(t *testing.T) {
		got := BuildVariants("placement pathway career score fees stem kjsea selection", "", VariantOptions{MaxVariants: 5})
		assert.Len(t, got, 5)
		seen := map[string]bool{}
		for _, v := range got {
			assert.False(t, seen[v], v)
			seen[v] = true
		}
	})

	t.Run("Should return nothing for an empty query", func(t *testing.T) {
		assert.Nil(t, BuildVariants("", "prev", opts))
	})
}
