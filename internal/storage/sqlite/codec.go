package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
)

const recordVersion = 1

const memoryColumns = `id, record_version, content, content_type, embedding, embedding_model,
	source_kind, conversation_id, message_ids, extracted_at, status, importance,
	confidence, verified, categories, entities, created_at, updated_at,
	last_accessed_at, access_count`

// memoryRow is the raw shape of a memories row before decoding.
type memoryRow struct {
	ID             string
	Version        int
	Content        string
	ContentType    string
	Embedding      []byte
	EmbeddingModel string
	SourceKind     string
	ConversationID sql.NullString
	MessageIDs     string
	ExtractedAt    sql.NullInt64
	Status         string
	Importance     float64
	Confidence     sql.NullFloat64
	Verified       bool
	Categories     string
	Entities       string
	CreatedAt      int64
	UpdatedAt      int64
	LastAccessedAt int64
	AccessCount    int64
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(s rowScanner) (memoryRow, error) {
	var r memoryRow
	err := s.Scan(&r.ID, &r.Version, &r.Content, &r.ContentType, &r.Embedding, &r.EmbeddingModel,
		&r.SourceKind, &r.ConversationID, &r.MessageIDs, &r.ExtractedAt, &r.Status, &r.Importance,
		&r.Confidence, &r.Verified, &r.Categories, &r.Entities, &r.CreatedAt, &r.UpdatedAt,
		&r.LastAccessedAt, &r.AccessCount)
	return r, err
}

type decodeFunc func(r memoryRow, dim int) (core.Memory, error)

var decoders = map[int]decodeFunc{
	1: decodeV1,
}

// decodeMemory dispatches on record_version. Unknown versions and invalid
// rows are errors, never coerced into a usable record.
func decodeMemory(r memoryRow, dim int) (core.Memory, error) {
	decode, ok := decoders[r.Version]
	if !ok {
		return core.Memory{}, fmt.Errorf("memory %s: unsupported record version %d", r.ID, r.Version)
	}
	m, err := decode(r, dim)
	if err != nil {
		return core.Memory{}, fmt.Errorf("memory %s: decode v%d: %w", r.ID, r.Version, err)
	}
	return m, nil
}

func decodeV1(r memoryRow, dim int) (core.Memory, error) {
	vec, err := deserializeVector(r.Embedding)
	if err != nil {
		return core.Memory{}, err
	}

	m := core.Memory{
		ID:             r.ID,
		Content:        r.Content,
		ContentType:    core.ContentType(r.ContentType),
		Embedding:      vec,
		EmbeddingModel: r.EmbeddingModel,
		Source: core.Source{
			Kind:           core.SourceKind(r.SourceKind),
			ConversationID: r.ConversationID.String,
		},
		Status:         core.Status(r.Status),
		Importance:     r.Importance,
		Verified:       r.Verified,
		CreatedAt:      fromUnixNano(r.CreatedAt),
		UpdatedAt:      fromUnixNano(r.UpdatedAt),
		LastAccessedAt: fromUnixNano(r.LastAccessedAt),
		AccessCount:    r.AccessCount,
	}

	if r.ExtractedAt.Valid {
		t := fromUnixNano(r.ExtractedAt.Int64)
		m.Source.ExtractedAt = &t
	}
	if r.Confidence.Valid {
		c := r.Confidence.Float64
		m.Confidence = &c
	}
	if err := json.Unmarshal([]byte(r.MessageIDs), &m.Source.MessageIDs); err != nil {
		return core.Memory{}, fmt.Errorf("message_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Categories), &m.Categories); err != nil {
		return core.Memory{}, fmt.Errorf("categories: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Entities), &m.Entities); err != nil {
		return core.Memory{}, fmt.Errorf("entities: %w", err)
	}
	if m.AccessCount < 0 {
		return core.Memory{}, fmt.Errorf("negative access count %d", m.AccessCount)
	}

	if err := m.Validate(dim); err != nil {
		return core.Memory{}, err
	}
	return m, nil
}

// encodedMemory holds the column values written for a memory.
type encodedMemory struct {
	embedding      []byte
	conversationID sql.NullString
	messageIDs     string
	extractedAt    sql.NullInt64
	confidence     sql.NullFloat64
	categories     string
	entities       string
}

func encodeMemory(m core.Memory) (encodedMemory, error) {
	var e encodedMemory

	vec, err := serializeVector(m.Embedding)
	if err != nil {
		return e, err
	}
	e.embedding = vec

	if e.messageIDs, err = marshalList(m.Source.MessageIDs); err != nil {
		return e, fmt.Errorf("failed to encode message ids: %w", err)
	}
	if e.categories, err = marshalList(m.Categories); err != nil {
		return e, fmt.Errorf("failed to encode categories: %w", err)
	}
	if e.entities, err = marshalList(m.Entities); err != nil {
		return e, fmt.Errorf("failed to encode entities: %w", err)
	}

	if m.Source.ConversationID != "" {
		e.conversationID = sql.NullString{String: m.Source.ConversationID, Valid: true}
	}
	if m.Source.ExtractedAt != nil {
		e.extractedAt = sql.NullInt64{Int64: m.Source.ExtractedAt.UnixNano(), Valid: true}
	}
	if m.Confidence != nil {
		e.confidence = sql.NullFloat64{Float64: *m.Confidence, Valid: true}
	}
	return e, nil
}

// marshalList stores nil slices as "[]" so decoding always sees an array.
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
