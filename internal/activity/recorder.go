// ABOUTME: Asynchronous activity log sink for login, logout and kick events
// ABOUTME: Record never blocks a request; a single worker appends records to the store

package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/warden/internal/store"
)

const (
	// queueSize is the number of records buffered before new ones are dropped.
	queueSize = 256

	// writeTimeout bounds each store append.
	writeTimeout = 5 * time.Second
)

// Appender persists activity records. Implemented by store.SQLiteStore.
type Appender interface {
	AppendActivity(ctx context.Context, rec *store.ActivityRecord) error
}

// Recorder queues activity records and writes them in the background.
type Recorder struct {
	appender Appender
	queue    chan store.ActivityRecord
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts a recorder writing to appender. Pass nil logger for default.
func NewRecorder(appender Appender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		appender: appender,
		queue:    make(chan store.ActivityRecord, queueSize),
		logger:   logger.With("component", "activity"),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues rec. If the queue is full or the recorder is closed the
// record is dropped and logged; callers are never blocked.
func (r *Recorder) Record(rec store.ActivityRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Debug("dropped activity after close", "action", rec.Action, "user_id", rec.UserID)
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("activity queue full, dropping record", "action", rec.Action, "user_id", rec.UserID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec store.ActivityRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.appender.AppendActivity(ctx, &rec); err != nil {
		r.logger.Error("failed to record activity", "action", rec.Action, "user_id", rec.UserID, "error", err)
	}
}

// Close stops accepting records and waits for queued ones to be written
// or for ctx to end. It is safe to call multiple times.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
