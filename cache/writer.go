package cache

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WriterConfig configures the write-behind persistence writer.
type WriterConfig struct {
	// QueueSize bounds the pending-write queue. Writes arriving while the
	// queue is full are dropped; faster tiers still hold the value.
	// Default: 1000
	QueueSize int

	// Workers is the number of goroutines draining the queue.
	// Default: 4
	Workers int

	// MaxRetries bounds requeues of a failed write.
	// Default: 3
	MaxRetries int

	// WriteTimeout bounds each persistence attempt.
	// Default: 5s
	WriteTimeout time.Duration

	// Logger receives drop and retry events. Optional.
	Logger logrus.FieldLogger
}

// DefaultWriterConfig returns the default writer configuration.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		QueueSize:    1000,
		Workers:      4,
		MaxRetries:   3,
		WriteTimeout: 5 * time.Second,
	}
}

// writeTask is one pending persistence write.
type writeTask struct {
	key     string
	value   []byte
	ttl     time.Duration
	retries int
}

// WriterStats reports write-behind queue state and outcome counters.
type WriterStats struct {
	QueueDepth    int   `json:"queue_depth"`
	QueueCapacity int   `json:"queue_capacity"`
	WorkerCount   int   `json:"worker_count"`
	Written       int64 `json:"written"`
	Dropped       int64 `json:"dropped"`
	Failed        int64 `json:"failed"`
}

// Writer persists cache writes to a slow Store tier in the background.
// Enqueue never blocks: when the queue is full the write is dropped, on
// the grounds that the faster tiers already hold the value and the
// persistent tier is an optimization, not the source of truth.
type Writer struct {
	store  Store
	cfg    *WriterConfig
	log    logrus.FieldLogger
	tracer trace.Tracer

	queue chan writeTask
	wg    sync.WaitGroup

	mu      sync.Mutex
	written int64
	dropped int64
	failed  int64
	closed  bool
}

// NewWriter creates a write-behind writer draining into store and starts
// its worker pool.
func NewWriter(store Store, cfg *WriterConfig) *Writer {
	if cfg == nil {
		cfg = DefaultWriterConfig()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	w := &Writer{
		store:  store,
		cfg:    cfg,
		log:    log,
		tracer: otel.Tracer("github.com/perchlabs/talon/cache"),
		queue:  make(chan writeTask, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	return w
}

// Enqueue queues a write for background persistence. Returns false when
// the write was dropped because the queue is full or the writer is closed.
func (w *Writer) Enqueue(key string, value []byte, ttl time.Duration) bool {
	stored := make([]byte, len(value))
	copy(stored, value)

	// The mutex is held across the send, as in the requeue path: Close
	// closes the channel under the same mutex, so the closed check and the
	// send are atomic with respect to shutdown.
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	select {
	case w.queue <- writeTask{key: key, value: stored, ttl: ttl}:
		w.mu.Unlock()
		return true
	default:
		w.dropped++
		w.mu.Unlock()
		w.log.WithField("key", key).Warn("write-behind queue full, dropping write")
		return false
	}
}

// worker drains the queue until it is closed.
func (w *Writer) worker(id int) {
	defer w.wg.Done()
	for task := range w.queue {
		w.process(id, task)
	}
}

func (w *Writer) process(id int, task writeTask) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	ctx, span := w.tracer.Start(ctx, "talon.write_behind", trace.WithAttributes(
		attribute.String("talon.key", task.key),
		attribute.Int("talon.retry", task.retries),
	))
	err := w.store.Set(ctx, task.key, task.value, task.ttl)
	span.End()
	cancel()

	if err == nil {
		w.mu.Lock()
		w.written++
		w.mu.Unlock()
		return
	}

	if task.retries < w.cfg.MaxRetries {
		task.retries++
		// Linear backoff before the requeue attempt; a full queue at this
		// point drops the write. The mutex orders the send against Close so
		// a shutting-down writer never sees a send on a closed channel.
		time.Sleep(time.Duration(task.retries) * 100 * time.Millisecond)
		requeued := false
		w.mu.Lock()
		if !w.closed {
			select {
			case w.queue <- task:
				requeued = true
			default:
			}
		}
		w.mu.Unlock()
		if requeued {
			w.log.WithFields(logrus.Fields{
				"worker": id,
				"key":    task.key,
				"retry":  task.retries,
			}).Info("requeued failed write")
			return
		}
	}

	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
	w.log.WithFields(logrus.Fields{
		"worker": id,
		"key":    task.key,
		"error":  err,
	}).Error("write-behind persistence failed")
}

// QueueDepth returns the current number of pending writes.
func (w *Writer) QueueDepth() int {
	return len(w.queue)
}

// Stats returns queue state and outcome counters.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriterStats{
		QueueDepth:    len(w.queue),
		QueueCapacity: cap(w.queue),
		WorkerCount:   w.cfg.Workers,
		Written:       w.written,
		Dropped:       w.dropped,
		Failed:        w.failed,
	}
}

// Close stops accepting writes and waits for the workers to drain the
// queue.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}
