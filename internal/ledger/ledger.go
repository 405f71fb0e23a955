// Package ledger is the append-only action log. Mutations are recorded
// fire-and-forget through a bounded queue so a slow or failing audit write
// never blocks or fails the mutation itself; drops and write errors are
// counted so operators can see when the feed is lossy.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/focusapp/focus/internal/otel"
	"github.com/focusapp/focus/internal/persistence"
)

// ActionStore is the persistence surface the ledger needs.
type ActionStore interface {
	InsertAction(ctx context.Context, n persistence.NewAction) (*persistence.Action, error)
	ListActions(ctx context.Context, f persistence.ActionFilter) ([]persistence.Action, error)
	MarkActionsRead(ctx context.Context, ids []string) (int64, error)
	MarkAllActionsRead(ctx context.Context, viewerUserID string) (int64, error)
	CountUnreadActions(ctx context.Context, viewerUserID string) (int64, error)
}

const writeTimeout = 10 * time.Second

// Recorder accepts action records and persists them from a background
// drain goroutine. Construct with NewRecorder and stop with Close.
type Recorder struct {
	store   ActionStore
	queue   chan persistence.NewAction
	logger  *slog.Logger
	metrics *otel.Metrics

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewRecorder(store ActionStore, queueSize int, logger *slog.Logger, metrics *otel.Metrics) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:   store,
		queue:   make(chan persistence.NewAction, queueSize),
		logger:  logger,
		metrics: metrics,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues one action for persistence. It never blocks: when the
// queue is full or the recorder is closed the record is dropped and
// counted. Callers must not treat a successful return as a durable write.
func (r *Recorder) Record(ctx context.Context, n persistence.NewAction) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(ctx, n)
		return
	}
	select {
	case r.queue <- n:
	default:
		r.drop(ctx, n)
	}
}

func (r *Recorder) drop(ctx context.Context, n persistence.NewAction) {
	if r.metrics != nil {
		r.metrics.LedgerDropped.Add(ctx, 1)
	}
	r.logger.Warn("action ledger dropping record",
		"entity_type", string(n.EntityType),
		"entity_id", n.EntityID,
		"action_kind", string(n.ActionKind))
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for n := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_, err := r.store.InsertAction(ctx, n)
		cancel()
		if err != nil {
			if r.metrics != nil {
				r.metrics.LedgerWriteFails.Add(context.Background(), 1)
			}
			r.logger.Error("action ledger write failed",
				"entity_type", string(n.EntityType),
				"entity_id", n.EntityID,
				"error", err)
			continue
		}
		if r.metrics != nil {
			r.metrics.LedgerRecorded.Add(context.Background(), 1)
		}
	}
}

// Close stops accepting records and waits until every queued record has
// been written or failed.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	r.wg.Wait()
}

// Feed is the read side of the ledger: the activity list a user sees plus
// its read-state bookkeeping.
type Feed struct {
	store ActionStore
}

func NewFeed(store ActionStore) *Feed {
	return &Feed{store: store}
}

// Query lists actions visible to the viewer, newest first. The viewer's
// own direct actions are excluded unless f.IncludeOwn is set; agent and
// system actions for the same user stay visible.
func (f *Feed) Query(ctx context.Context, filter persistence.ActionFilter) ([]persistence.Action, error) {
	return f.store.ListActions(ctx, filter)
}

// MarkRead flags the given action IDs as read. An empty list is a no-op
// and does not touch the store.
func (f *Feed) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return f.store.MarkActionsRead(ctx, ids)
}

// MarkAllRead flags every unread action in the viewer's feed as read.
func (f *Feed) MarkAllRead(ctx context.Context, viewerUserID string) (int64, error) {
	return f.store.MarkAllActionsRead(ctx, viewerUserID)
}

// UnreadCount counts the unread actions in the viewer's feed.
func (f *Feed) UnreadCount(ctx context.Context, viewerUserID string) (int64, error) {
	return f.store.CountUnreadActions(ctx, viewerUserID)
}
