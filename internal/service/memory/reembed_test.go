package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReembedWorker_RunOnceMigratesAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.create(t, fmt.Sprintf("memory %d", i))
	}
	env.emb.model = "test/v2"

	w := NewReembedWorker(env.store, time.Minute, 2)
	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	stale, err := env.store.Stale(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReembedWorker_EmbeddingDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "legacy")
	env.emb.model = "test/v2"
	env.emb.setFail(errors.New("provider down"))

	n, err := NewReembedWorker(env.store, time.Minute, 2).RunOnce(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)

	stale, err := env.store.Stale(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestReembedWorker_StartStops(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "legacy")
	env.emb.model = "test/v2"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewReembedWorker(env.store, 10*time.Millisecond, 0).Start(ctx) }()

	require.Eventually(t, func() bool {
		stale, err := env.store.Stale(context.Background(), 10)
		return err == nil && len(stale) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewReembedWorker_Defaults(t *testing.T) {
	w := NewReembedWorker(nil, 0, -1)
	assert.Equal(t, ReembedPollInterval, w.interval)
	assert.Equal(t, ReembedBatchSize, w.batchSize)
}
