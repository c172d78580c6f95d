package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/syncx"
)

// Extractor turns transcripts into memories with an LLM. Candidates that
// repeat an existing memory reinforce it instead of creating a new one.
type Extractor struct {
	store    *Store
	tracker  core.MessageTracker
	primary  core.AIProvider
	fallback core.AIProvider
	cfg      config.ExtractionConfig
	now      func() time.Time

	// one run per conversation, whichever path started it
	runs *syncx.KeyedMutex
}

func NewExtractor(
	store *Store,
	tracker core.MessageTracker,
	primary core.AIProvider,
	fallback core.AIProvider,
	cfg config.ExtractionConfig,
) *Extractor {
	return &Extractor{
		store:    store,
		tracker:  tracker,
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		runs:     syncx.NewKeyedMutex(),
	}
}

// ExtractFromConversation mines the messages not yet processed for this
// conversation. Each window commits atomically and is marked processed
// only after its memories are stored; a failed window is left for the
// next run. Runs for the same conversation are serialized.
func (e *Extractor) ExtractFromConversation(ctx context.Context, conversationID string, messages []core.Message) ([]core.Memory, error) {
	logger := log.FromCtx(ctx).With().Str("conversation_id", conversationID).Logger()

	unlock := e.runs.Lock(conversationID)
	defer unlock()

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}

	pending, err := e.tracker.Unprocessed(ctx, conversationID, ids)
	if err != nil {
		return nil, fmt.Errorf("load processed messages: %w", err)
	}
	isPending := make(map[string]bool, len(pending))
	for _, id := range pending {
		isPending[id] = true
	}

	var eligible []core.Message
	var skipped []string
	for _, m := range messages {
		if !isPending[m.ID] {
			continue
		}
		isPending[m.ID] = false
		if m.Role == core.RoleSystem || m.Role == core.RoleTool {
			skipped = append(skipped, m.ID)
			continue
		}
		eligible = append(eligible, m)
	}

	var (
		created []core.Memory
		errs    []error
	)
	for _, window := range e.windows(eligible) {
		mems, err := e.processWindow(ctx, conversationID, window)
		created = append(created, mems...)
		if err != nil {
			if ctx.Err() != nil {
				return created, ctx.Err()
			}
			logger.Error().Err(err).Int("messages", len(window)).Msg("extraction window abandoned")
			errs = append(errs, err)
		}
	}

	if err := e.tracker.MarkProcessed(ctx, conversationID, skipped); err != nil {
		errs = append(errs, fmt.Errorf("mark processed: %w", err))
	}

	logger.Debug().Int("created", len(created)).Int("pending", len(eligible)).Msg("conversation extracted")
	return created, errors.Join(errs...)
}

// Extract mines a free-form transcript, split into token-bounded chunks.
func (e *Extractor) Extract(ctx context.Context, transcript string, source core.Source) ([]core.Memory, error) {
	if source.Kind == "" {
		source.Kind = core.SourceManual
	}
	now := e.now()
	source.ExtractedAt = &now

	chunks := ChunkText(transcript, ChunkerConfig{
		MaxTokens:     e.cfg.MaxTokens,
		OverlapTokens: e.cfg.MaxTokens / 10,
	})

	var (
		created []core.Memory
		errs    []error
	)
	for _, chunk := range chunks {
		text := "USER: " + chunk.Text
		if source.Kind == core.SourceDocument {
			text = "DOCUMENT: " + chunk.Text
		}

		cands, err := e.propose(ctx, text)
		if err == nil {
			var mems []core.Memory
			mems, err = e.commit(ctx, cands, source)
			created = append(created, mems...)
		}
		if err != nil {
			if ctx.Err() != nil {
				return created, ctx.Err()
			}
			log.FromCtx(ctx).Error().Err(err).Int("chunk", chunk.Index).Msg("extraction chunk abandoned")
			errs = append(errs, err)
		}
	}
	return created, errors.Join(errs...)
}

// windows groups messages by count and by transcript token budget.
func (e *Extractor) windows(msgs []core.Message) [][]core.Message {
	var (
		out     [][]core.Message
		current []core.Message
		tokens  int
	)
	for _, m := range msgs {
		t := countTokens(m.Role + ": " + m.Content)
		if len(current) > 0 && (len(current) >= e.cfg.BatchWindow || tokens+t > e.cfg.MaxTokens) {
			out = append(out, current)
			current, tokens = nil, 0
		}
		current = append(current, m)
		tokens += t
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func (e *Extractor) processWindow(ctx context.Context, conversationID string, window []core.Message) ([]core.Memory, error) {
	cands, err := e.propose(ctx, formatConversation(window))
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(window))
	for i, m := range window {
		ids[i] = m.ID
	}
	now := e.now()
	source := core.Source{
		Kind:           core.SourceConversation,
		ConversationID: conversationID,
		MessageIDs:     ids,
		ExtractedAt:    &now,
	}

	created, err := e.commit(ctx, cands, source)
	if err != nil {
		return nil, err
	}

	if err := e.tracker.MarkProcessed(ctx, conversationID, ids); err != nil {
		return created, fmt.Errorf("mark processed: %w", err)
	}
	return created, nil
}

// propose asks the primary model and, when it fails or answers with
// invalid output, the fallback model once.
func (e *Extractor) propose(ctx context.Context, transcript string) ([]candidate, error) {
	history := []core.Message{
		{Role: core.RoleSystem, Content: extractionSystemPrompt},
		{Role: core.RoleUser, Content: buildExtractionPrompt(transcript)},
	}

	var errs []error
	for i, ai := range []core.AIProvider{e.primary, e.fallback} {
		if ai == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := ai.Chat(ctx, history)
		if err == nil {
			var cands []candidate
			if cands, err = parseCandidates(resp.Content); err == nil {
				return cands, nil
			}
		}

		if i == 0 && e.fallback != nil {
			log.FromCtx(ctx).Warn().Err(err).Msg("primary extraction model failed, retrying with fallback")
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", core.ErrExtractionFailed, errors.Join(errs...))
}

type reinforcement struct {
	id         string
	confidence float64
}

// commit embeds all candidates at once, drops duplicates and stores the
// survivors in one transaction. Reinforcements are applied only after the
// commit succeeded.
func (e *Extractor) commit(ctx context.Context, cands []candidate, source core.Source) ([]core.Memory, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Content
	}
	embs, err := e.store.embedder.EmbedBatch(ctx, texts, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: embed candidates: %w", core.ErrExtractionFailed, err)
	}

	filter := core.Filter{ConversationID: source.ConversationID}
	if e.cfg.GlobalDedup {
		filter.ConversationID = ""
	}

	var (
		drafts []Draft
		reinf  []reinforcement
	)
	for i, c := range cands {
		conf := e.cfg.DefaultConfidence
		if c.Confidence != nil {
			conf = *c.Confidence
		}

		if j := e.matchDraft(drafts, embs[i].Vector); j >= 0 {
			if conf > *drafts[j].Confidence {
				drafts[j].Confidence = &conf
			}
			continue
		}

		hits, err := e.store.Similar(ctx, embs[i].Vector, filter, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: dedup lookup: %w", core.ErrExtractionFailed, err)
		}
		if len(hits) > 0 && hits[0].Score > e.cfg.DedupThreshold {
			reinf = append(reinf, reinforcement{id: hits[0].ID, confidence: conf})
			continue
		}

		drafts = append(drafts, Draft{
			NewMemory: NewMemory{
				Content:     c.Content,
				ContentType: c.ContentType,
				Source:      source,
				Importance:  c.Importance,
				Confidence:  &conf,
				Categories:  c.Categories,
				Entities:    c.Entities,
			},
			Embedding: embs[i],
		})
	}

	created, err := e.store.CreateBatch(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}

	for _, r := range reinf {
		if err := e.store.Reinforce(ctx, r.id, r.confidence); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("memory_id", r.id).Msg("failed to reinforce memory")
		}
	}

	log.FromCtx(ctx).Info().
		Int("created", len(created)).
		Int("reinforced", len(reinf)).
		Msg("memories extracted")
	return created, nil
}

func (e *Extractor) matchDraft(drafts []Draft, vec []float32) int {
	for j, d := range drafts {
		if cosine(d.Embedding.Vector, vec) > e.cfg.DedupThreshold {
			return j
		}
	}
	return -1
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
