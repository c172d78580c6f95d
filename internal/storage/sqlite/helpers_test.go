package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testMemory(id, content string, offset time.Duration) core.Memory {
	at := baseTime.Add(offset)
	return core.Memory{
		ID:             id,
		Content:        content,
		ContentType:    core.ContentFact,
		Embedding:      []float32{1, 0, 0, 0},
		EmbeddingModel: "test/model",
		Source:         core.Source{Kind: core.SourceManual},
		Status:         core.StatusActive,
		Importance:     core.DefaultImportance,
		Categories:     []string{},
		Entities:       []core.Entity{},
		CreatedAt:      at,
		UpdatedAt:      at,
		LastAccessedAt: at,
	}
}
