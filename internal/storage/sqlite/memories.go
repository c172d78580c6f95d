package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
)

const scanBatch = 256

type MemoryRepo struct {
	db  *sql.DB
	dim int
}

func NewMemoryRepo(db *sql.DB, dim int) *MemoryRepo {
	return &MemoryRepo{db: db, dim: dim}
}

// Insert writes all memories in one transaction.
func (r *MemoryRepo) Insert(ctx context.Context, memories ...core.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare memory insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range memories {
		if err := m.Validate(r.dim); err != nil {
			return err
		}
		e, err := encodeMemory(m)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx,
			m.ID, recordVersion, m.Content, string(m.ContentType), e.embedding, m.EmbeddingModel,
			string(m.Source.Kind), e.conversationID, e.messageIDs, e.extractedAt, string(m.Status), m.Importance,
			e.confidence, m.Verified, e.categories, e.entities, m.CreatedAt.UnixNano(), m.UpdatedAt.UnixNano(),
			m.LastAccessedAt.UnixNano(), m.AccessCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert memory %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns the record with any status.
func (r *MemoryRepo) Get(ctx context.Context, id string) (core.Memory, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories m WHERE m.id = ?`, id)
	raw, err := scanMemoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Memory{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Memory{}, fmt.Errorf("failed to load memory: %w", err)
	}
	return decodeMemory(raw, r.dim)
}

// GetMany loads the given ids in no particular order; unknown ids are skipped.
func (r *MemoryRepo) GetMany(ctx context.Context, ids []string) ([]core.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + memoryColumns + ` FROM memories m WHERE m.id IN (` + placeholders(len(ids)) + `)`
	return r.query(ctx, query, stringArgs(ids)...)
}

// Save overwrites every mutable column of an existing record in a single
// statement, so content and embedding always change together.
func (r *MemoryRepo) Save(ctx context.Context, m core.Memory) error {
	if err := m.Validate(r.dim); err != nil {
		return err
	}
	e, err := encodeMemory(m)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `UPDATE memories SET
			record_version = ?, content = ?, content_type = ?, embedding = ?, embedding_model = ?,
			status = ?, importance = ?, confidence = ?, verified = ?, categories = ?, entities = ?,
			updated_at = ?
		WHERE id = ?`,
		recordVersion, m.Content, string(m.ContentType), e.embedding, m.EmbeddingModel,
		string(m.Status), m.Importance, e.confidence, m.Verified, e.categories, e.entities,
		m.UpdatedAt.UnixNano(), m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save memory %s: %w", m.ID, err)
	}
	return expectAffected(res, m.ID)
}

// List pages through matching records, newest first.
func (r *MemoryRepo) List(ctx context.Context, filter core.Filter, page core.Page) ([]core.Memory, error) {
	page = page.Normalize()
	where, args := whereFilter(filter)

	query := `SELECT ` + memoryColumns + ` FROM memories m WHERE ` + where +
		` ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	return r.query(ctx, query, args...)
}

// RecordAccess bumps access statistics once per distinct id. Deleted rows
// are left untouched.
func (r *MemoryRepo) RecordAccess(ctx context.Context, ids []string, at time.Time) error {
	distinct := slices.Clone(ids)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	if len(distinct) == 0 {
		return nil
	}

	args := append([]any{at.UnixNano()}, stringArgs(distinct)...)
	_, err := r.db.ExecContext(ctx, `UPDATE memories
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE status IN ('active', 'archived') AND id IN (`+placeholders(len(distinct))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// Reinforce raises confidence to at least the given value without counting
// an access.
func (r *MemoryRepo) Reinforce(ctx context.Context, id string, confidence float64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE memories
		SET confidence = MAX(COALESCE(confidence, 0), ?), last_accessed_at = ?
		WHERE id = ? AND status != 'deleted'`, confidence, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to reinforce memory %s: %w", id, err)
	}
	return expectAffected(res, id)
}

// Stale returns live records embedded by a model other than the given one.
func (r *MemoryRepo) Stale(ctx context.Context, model string, limit int) ([]core.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories m
		WHERE m.status != 'deleted' AND m.embedding_model != ?
		ORDER BY m.seq ASC LIMIT ?`
	return r.query(ctx, query, model, limit)
}

// Scan visits every non-deleted record. Rows are read in batches and released
// before fn runs, so fn may use the database.
func (r *MemoryRepo) Scan(ctx context.Context, fn func(core.Memory) error) error {
	var after int64
	for {
		rows, err := r.db.QueryContext(ctx, `SELECT m.seq, `+memoryColumns+` FROM memories m
			WHERE m.status != 'deleted' AND m.seq > ? ORDER BY m.seq ASC LIMIT ?`, after, scanBatch)
		if err != nil {
			return fmt.Errorf("failed to scan memories: %w", err)
		}

		var batch []memoryRow
		for rows.Next() {
			var seq int64
			var raw memoryRow
			err := rows.Scan(&seq, &raw.ID, &raw.Version, &raw.Content, &raw.ContentType, &raw.Embedding,
				&raw.EmbeddingModel, &raw.SourceKind, &raw.ConversationID, &raw.MessageIDs, &raw.ExtractedAt,
				&raw.Status, &raw.Importance, &raw.Confidence, &raw.Verified, &raw.Categories, &raw.Entities,
				&raw.CreatedAt, &raw.UpdatedAt, &raw.LastAccessedAt, &raw.AccessCount)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan memory: %w", err)
			}
			after = seq
			batch = append(batch, raw)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}

		for _, raw := range batch {
			m, err := decodeMemory(raw, r.dim)
			if err != nil {
				return err
			}
			if err := fn(m); err != nil {
				return err
			}
		}

		if len(batch) < scanBatch {
			return nil
		}
	}
}

func (r *MemoryRepo) query(ctx context.Context, query string, args ...any) ([]core.Memory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var raws []memoryRow
	for rows.Next() {
		raw, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	memories := make([]core.Memory, 0, len(raws))
	for _, raw := range raws {
		m, err := decodeMemory(raw, r.dim)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, nil
}

func expectAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return nil
}
