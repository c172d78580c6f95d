package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// ConversationExtractor is implemented by Extractor.
type ConversationExtractor interface {
	ExtractFromConversation(ctx context.Context, conversationID string, messages []core.Message) ([]core.Memory, error)
}

type conversationJob struct {
	pending []core.Message
	queued  bool
	running bool
}

// Queue runs extraction in the background with a fixed number of workers.
// A conversation has at most one run in flight; messages submitted during
// a run are merged into a single follow-up run.
type Queue struct {
	extractor ConversationExtractor
	workers   int
	timeout   time.Duration

	ready chan string

	mu     sync.Mutex
	jobs   map[string]*conversationJob
	closed bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func NewQueue(extractor ConversationExtractor, workers, size int, timeout time.Duration) *Queue {
	return &Queue{
		extractor: extractor,
		workers:   max(workers, 1),
		timeout:   timeout,
		ready:     make(chan string, max(size, 1)),
		jobs:      make(map[string]*conversationJob),
		stop:      make(chan struct{}),
		cancel:    func() {},
	}
}

// Submit schedules extraction and returns immediately. When the queue is
// full the submission is dropped; the messages stay unprocessed and are
// picked up by a later submission.
func (q *Queue) Submit(ctx context.Context, conversationID string, messages []core.Message) {
	logger := log.FromCtx(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		logger.Warn().Str("conversation_id", conversationID).Msg("extraction queue closed, submission dropped")
		return
	}

	job, ok := q.jobs[conversationID]
	if !ok {
		job = &conversationJob{}
		q.jobs[conversationID] = job
	}
	job.pending = mergeMessages(job.pending, messages)

	if job.queued || job.running {
		return
	}
	if !q.enqueue(conversationID, job) {
		logger.Warn().Str("conversation_id", conversationID).Msg("extraction queue full, submission dropped")
	}
}

// enqueue must be called with q.mu held.
func (q *Queue) enqueue(conversationID string, job *conversationJob) bool {
	select {
	case q.ready <- conversationID:
		job.queued = true
		return true
	default:
		job.pending = nil
		if !job.running {
			delete(q.jobs, conversationID)
		}
		return false
	}
}

func (q *Queue) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "extraction_queue").Logger()
	logger.Info().Int("workers", q.workers).Msg("starting extraction queue")

	// runs outlive ctx until Shutdown gives up on them
	runCtx, cancel := context.WithCancel(logger.WithContext(context.WithoutCancel(ctx)))
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(runCtx)
	}

	<-ctx.Done()
	return nil
}

// Shutdown stops taking work and waits for in-flight runs. Queued runs
// that have not started are dropped.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()

	q.stopOnce.Do(func() { close(q.stop) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case id := <-q.ready:
			q.run(ctx, id)
		}
	}
}

func (q *Queue) run(ctx context.Context, conversationID string) {
	q.mu.Lock()
	job, ok := q.jobs[conversationID]
	if !ok {
		q.mu.Unlock()
		return
	}
	messages := job.pending
	job.pending = nil
	job.queued = false
	job.running = true
	q.mu.Unlock()

	runCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	logger := log.FromCtx(ctx)
	if _, err := q.extractor.ExtractFromConversation(runCtx, conversationID, messages); err != nil {
		logger.Error().Err(err).Str("conversation_id", conversationID).Msg("background extraction failed")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job.running = false
	if len(job.pending) > 0 && !q.closed {
		if !q.enqueue(conversationID, job) {
			logger.Warn().Str("conversation_id", conversationID).Msg("extraction queue full, follow-up dropped")
		}
		return
	}
	delete(q.jobs, conversationID)
}

// mergeMessages appends messages whose ids are not already pending.
func mergeMessages(pending, messages []core.Message) []core.Message {
	seen := make(map[string]struct{}, len(pending))
	for _, m := range pending {
		seen[m.ID] = struct{}{}
	}
	for _, m := range messages {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		pending = append(pending, m)
	}
	return pending
}
