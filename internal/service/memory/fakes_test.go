package memory

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/sandevgo/tuskmem/internal/storage/vector"
	"github.com/stretchr/testify/require"
)

const testDim = 8

// hashEmbedder derives a stable unit vector from the text. Texts listed in
// fixed get exactly that vector.
type hashEmbedder struct {
	mu    sync.Mutex
	dim   int
	model string
	fixed map[string][]float32
	fail  error
	calls int
}

func newHashEmbedder() *hashEmbedder {
	return &hashEmbedder{dim: testDim, model: "test/hash", fixed: map[string][]float32{}}
}

func (h *hashEmbedder) Model() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model
}

func (h *hashEmbedder) setFail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail = err
}

func (h *hashEmbedder) vector(text string) []float32 {
	if v, ok := h.fixed[text]; ok {
		return append([]float32(nil), v...)
	}

	f := fnv.New64a()
	_, _ = f.Write([]byte(text))
	seed := f.Sum64()

	vec := make([]float32, h.dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11)%2000-1000) / 1000
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.fail != nil {
		return nil, h.fail
	}
	return h.vector(text), nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string, _ int) ([]core.Embedding, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.fail != nil {
		return nil, h.fail
	}
	out := make([]core.Embedding, len(texts))
	for i, t := range texts {
		out[i] = core.Embedding{Vector: h.vector(t), Model: h.model}
	}
	return out, nil
}

// unit returns the i-th basis vector, optionally tilted towards the next axis.
func unit(i int, tilt float32) []float32 {
	v := make([]float32, testDim)
	v[i%testDim] = 1
	v[(i+1)%testDim] = tilt
	return v
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testEnv struct {
	db      *sql.DB
	repo    *sqlite.MemoryRepo
	index   *vector.ChromemIndex
	lexical *sqlite.LexicalIndex
	tracker *sqlite.MessagesRepo
	emb     *hashEmbedder
	store   *Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.NewDB(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := vector.NewChromemIndex()
	require.NoError(t, err)

	env := &testEnv{
		db:      db,
		repo:    sqlite.NewMemoryRepo(db, testDim),
		index:   index,
		lexical: sqlite.NewLexicalIndex(db),
		tracker: sqlite.NewMessagesRepo(db),
		emb:     newHashEmbedder(),
	}
	env.store = NewStore(env.repo, env.index, env.emb, testDim)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	env.store.now = clock.Now
	return env
}

func (e *testEnv) create(t *testing.T, content string, mutate ...func(*NewMemory)) core.Memory {
	t.Helper()
	nm := NewMemory{Content: content, ContentType: core.ContentFact}
	for _, f := range mutate {
		f(&nm)
	}
	m, err := e.store.Create(context.Background(), nm)
	require.NoError(t, err)
	return m
}

type failingVector struct {
	core.VectorIndex
	err error
}

func (f failingVector) QueryVector(context.Context, []float32, core.Filter, int, int) ([]core.Ranked, error) {
	return nil, f.err
}

type failingLexical struct {
	err error
}

func (f failingLexical) QueryText(context.Context, string, core.Filter, int) ([]core.Ranked, error) {
	return nil, f.err
}

// staticVector and staticLexical serve fixed result lists.
type staticVector struct {
	core.VectorIndex
	hits []core.Ranked
}

func (s staticVector) QueryVector(context.Context, []float32, core.Filter, int, int) ([]core.Ranked, error) {
	return s.hits, nil
}

type staticLexical struct {
	hits []core.Ranked
}

func (s staticLexical) QueryText(context.Context, string, core.Filter, int) ([]core.Ranked, error) {
	return s.hits, nil
}

// scriptedAI answers with queued replies; an error entry fails that call.
type scriptedAI struct {
	mu      sync.Mutex
	replies []any
	calls   int
	prompts []string
}

func (s *scriptedAI) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, history[len(history)-1].Content)

	if len(s.replies) == 0 {
		return core.Message{Role: core.RoleAssistant, Content: "[]"}, nil
	}
	next := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	switch v := next.(type) {
	case error:
		return core.Message{}, v
	case string:
		return core.Message{Role: core.RoleAssistant, Content: v}, nil
	}
	return core.Message{}, errors.New("bad script entry")
}

func (s *scriptedAI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// rendezvous lets two backends prove they run at the same time: each
// signals on its own channel and waits for the other one.
type rendezvous struct {
	vectorIn, lexicalIn chan struct{}
}

func newRendezvous() *rendezvous {
	return &rendezvous{vectorIn: make(chan struct{}), lexicalIn: make(chan struct{})}
}

func (r *rendezvous) meet(ctx context.Context, mine, theirs chan struct{}) error {
	close(mine)
	select {
	case <-theirs:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("other backend never started")
	case <-ctx.Done():
		return ctx.Err()
	}
}

type meetingVector struct {
	core.VectorIndex
	r    *rendezvous
	hits []core.Ranked
}

func (m meetingVector) QueryVector(ctx context.Context, _ []float32, _ core.Filter, _, _ int) ([]core.Ranked, error) {
	if err := m.r.meet(ctx, m.r.vectorIn, m.r.lexicalIn); err != nil {
		return nil, err
	}
	return m.hits, nil
}

type meetingLexical struct {
	r    *rendezvous
	hits []core.Ranked
}

func (m meetingLexical) QueryText(ctx context.Context, _ string, _ core.Filter, _ int) ([]core.Ranked, error) {
	if err := m.r.meet(ctx, m.r.lexicalIn, m.r.vectorIn); err != nil {
		return nil, err
	}
	return m.hits, nil
}
