package spanstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultWriterBufferSize = 1024
	defaultWriterBatchSize  = 64
)

const (
	QueuePressureOK        = "ok"
	QueuePressureElevated  = "elevated"
	QueuePressureHigh      = "high"
	QueuePressureSaturated = "saturated"
)

var writeErrorClasses = []string{
	WriteErrorClassConnection,
	WriteErrorClassTimeout,
	WriteErrorClassContention,
	WriteErrorClassConstraint,
	WriteErrorClassUnknown,
}

// DiagnosticsReader exposes the span pipeline queue and drop counters.
type DiagnosticsReader interface {
	SpanPipelineDiagnostics() PipelineDiagnostics
}

type PipelineDiagnostics struct {
	QueueCapacity                    int              `json:"queue_capacity"`
	QueueDepth                       int              `json:"queue_depth"`
	QueueDepthHighWatermark          int              `json:"queue_depth_high_watermark"`
	QueueUtilizationPct              int              `json:"queue_utilization_pct"`
	QueueHighWatermarkUtilizationPct int              `json:"queue_high_watermark_utilization_pct"`
	QueuePressureState               string           `json:"queue_pressure_state"`
	EnqueueAcceptedTotal             int64            `json:"enqueue_accepted_total"`
	EnqueueDroppedTotal              int64            `json:"enqueue_dropped_total"`
	WrittenTotal                     int64            `json:"written_total"`
	WriteDroppedTotal                int64            `json:"write_dropped_total"`
	TotalDroppedTotal                int64            `json:"total_dropped_total"`
	LastEnqueueDropAt                *time.Time       `json:"last_enqueue_drop_at,omitempty"`
	LastWriteDropAt                  *time.Time       `json:"last_write_drop_at,omitempty"`
	LastWriteDropOperation           string           `json:"last_write_drop_operation,omitempty"`
	WriteFailuresByClass             map[string]int64 `json:"write_failures_by_class,omitempty"`
	StoreDriver                      string           `json:"store_driver,omitempty"`
}

// WriteFailure describes span records that could not be persisted.
type WriteFailure struct {
	Operation   string
	BatchSize   int
	FailedCount int
	Err         error
	ErrorClass  string
}

type WriteFailureHandler func(WriteFailure)

// WriterMetrics holds optional callbacks invoked at pipeline points.
type WriterMetrics struct {
	OnEnqueue func()
	OnDrop    func()
	OnFlush   func(batchSize int, duration time.Duration)
	// OnWriteStart returns a function called with the write outcome.
	OnWriteStart func(batchSize int) func(error)
}

type WriterOptions struct {
	BufferSize  int
	BatchSize   int
	StoreDriver string
	Logger      *slog.Logger
}

// Writer persists spans asynchronously. Enqueue never blocks; a full queue
// drops the span and counts it.
type Writer struct {
	store     Store
	queue     chan *Span
	batchSize int
	driver    string
	logger    *slog.Logger
	wg        sync.WaitGroup

	started      atomic.Bool
	stopped      atomic.Bool
	stopOnce     sync.Once
	doneOnce     sync.Once
	done         chan struct{}
	queueMu      sync.RWMutex
	cancelMu     sync.Mutex
	workerCancel context.CancelFunc
	onFailure    atomic.Pointer[WriteFailureHandler]
	metrics      atomic.Pointer[WriterMetrics]

	queueDepthHighWatermark atomic.Int64
	enqueueAcceptedTotal    atomic.Int64
	enqueueDroppedTotal     atomic.Int64
	writtenTotal            atomic.Int64
	writeDroppedTotal       atomic.Int64
	lastEnqueueDropUnixNano atomic.Int64
	lastWriteDropUnixNano   atomic.Int64
	lastWriteDropOperation  atomic.Value // string
	failuresByClass         map[string]*atomic.Int64
}

func NewWriter(store Store, options WriterOptions) *Writer {
	if options.BufferSize <= 0 {
		options.BufferSize = defaultWriterBufferSize
	}
	if options.BatchSize <= 0 {
		options.BatchSize = defaultWriterBatchSize
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	w := &Writer{
		store:           store,
		queue:           make(chan *Span, options.BufferSize),
		batchSize:       options.BatchSize,
		driver:          options.StoreDriver,
		logger:          options.Logger,
		done:            make(chan struct{}),
		failuresByClass: make(map[string]*atomic.Int64, len(writeErrorClasses)),
	}
	for _, class := range writeErrorClasses {
		w.failuresByClass[class] = &atomic.Int64{}
	}
	w.metrics.Store(&WriterMetrics{})
	w.lastWriteDropOperation.Store("")
	return w
}

// SetWriteFailureHandler replaces the callback for dropped span writes.
func (w *Writer) SetWriteFailureHandler(handler WriteFailureHandler) {
	if w == nil {
		return
	}
	if handler == nil {
		w.onFailure.Store(nil)
		return
	}
	w.onFailure.Store(&handler)
}

func (w *Writer) SetMetrics(m *WriterMetrics) {
	if w == nil {
		return
	}
	if m == nil {
		m = &WriterMetrics{}
	}
	w.metrics.Store(m)
}

func (w *Writer) QueueLen() int {
	if w == nil {
		return 0
	}
	return len(w.queue)
}

func (w *Writer) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancelMu.Lock()
	w.workerCancel = cancel
	w.cancelMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.markDone()
		w.run(workerCtx)
	}()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case first, ok := <-w.queue:
			if !ok {
				return
			}
			batch, closed := w.collect(ctx, first)
			if closed || ctx.Err() != nil {
				// The drain flush must not inherit the cancelled context.
				w.flushBatch(context.Background(), batch)
				return
			}
			w.flushBatch(ctx, batch)
		}
	}
}

// collect gathers already queued spans behind first without waiting.
func (w *Writer) collect(ctx context.Context, first *Span) ([]*Span, bool) {
	batch := make([]*Span, 0, w.batchSize)
	if first != nil {
		batch = append(batch, first)
	}
	for len(batch) < w.batchSize {
		select {
		case <-ctx.Done():
			return batch, false
		case next, ok := <-w.queue:
			if !ok {
				return batch, true
			}
			if next != nil {
				batch = append(batch, next)
			}
		default:
			return batch, false
		}
	}
	return batch, false
}

func (w *Writer) Enqueue(span *Span) bool {
	if w.stopped.Load() {
		return false
	}
	w.queueMu.RLock()
	defer w.queueMu.RUnlock()
	if w.stopped.Load() {
		return false
	}

	metrics := w.metrics.Load()
	select {
	case w.queue <- span:
		w.enqueueAcceptedTotal.Add(1)
		w.observeQueueDepth(len(w.queue))
		if metrics.OnEnqueue != nil {
			metrics.OnEnqueue()
		}
		return true
	default:
		w.enqueueDroppedTotal.Add(1)
		w.observeQueueDepth(cap(w.queue))
		w.lastEnqueueDropUnixNano.Store(time.Now().UTC().UnixNano())
		if metrics.OnDrop != nil {
			metrics.OnDrop()
		}
		return false
	}
}

// Shutdown stops accepting spans and waits for queued spans to flush or for
// ctx to end.
func (w *Writer) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		w.queueMu.Lock()
		close(w.queue)
		w.queueMu.Unlock()
		if !w.started.Load() {
			w.markDone()
		}
	})

	select {
	case <-w.done:
		w.wg.Wait()
		w.cancelWorker()
		return nil
	case <-ctx.Done():
		w.cancelWorker()
		return ctx.Err()
	}
}

func (w *Writer) cancelWorker() {
	w.cancelMu.Lock()
	cancel := w.workerCancel
	w.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Writer) markDone() {
	w.doneOnce.Do(func() {
		close(w.done)
	})
}

func (w *Writer) flushBatch(ctx context.Context, batch []*Span) {
	if len(batch) == 0 {
		return
	}
	metrics := w.metrics.Load()
	start := time.Now()
	droppedBefore := w.writeDroppedTotal.Load()
	if metrics.OnWriteStart != nil {
		end := metrics.OnWriteStart(len(batch))
		defer func() {
			var writeErr error
			if w.writeDroppedTotal.Load() > droppedBefore {
				writeErr = errors.New("batch had write failures")
			}
			end(writeErr)
		}()
	}
	if metrics.OnFlush != nil {
		defer func() {
			metrics.OnFlush(len(batch), time.Since(start))
		}()
	}

	if len(batch) == 1 {
		if err := w.store.WriteSpan(ctx, batch[0]); err != nil {
			w.reportWriteFailure(WriteFailure{Operation: "write_span", BatchSize: 1, FailedCount: 1, Err: err})
			return
		}
		w.writtenTotal.Add(1)
		return
	}

	err := w.store.WriteBatch(ctx, batch)
	if err == nil {
		w.writtenTotal.Add(int64(len(batch)))
		return
	}

	// One bad row rolls back the whole batch; retry row by row so the rest
	// still lands.
	failed := 0
	var firstErr error
	for _, span := range batch {
		if spanErr := w.store.WriteSpan(ctx, span); spanErr != nil {
			failed++
			if firstErr == nil {
				firstErr = spanErr
			}
			continue
		}
		w.writtenTotal.Add(1)
	}
	if failed > 0 {
		w.reportWriteFailure(WriteFailure{
			Operation:   "write_batch_fallback",
			BatchSize:   len(batch),
			FailedCount: failed,
			Err:         errors.Join(err, firstErr),
		})
	}
}

func (w *Writer) reportWriteFailure(failure WriteFailure) {
	if failure.FailedCount <= 0 {
		return
	}
	failure.ErrorClass = ClassifyWriteError(failure.Err)
	w.writeDroppedTotal.Add(int64(failure.FailedCount))
	w.lastWriteDropUnixNano.Store(time.Now().UTC().UnixNano())
	if failure.Operation != "" {
		w.lastWriteDropOperation.Store(failure.Operation)
	}
	counter, ok := w.failuresByClass[failure.ErrorClass]
	if !ok {
		counter = w.failuresByClass[WriteErrorClassUnknown]
	}
	counter.Add(int64(failure.FailedCount))

	w.logger.Error(
		"span write failed",
		"operation", failure.Operation,
		"batch_size", failure.BatchSize,
		"failed_count", failure.FailedCount,
		"error_class", failure.ErrorClass,
		"error", failure.Err,
	)
	if handler := w.onFailure.Load(); handler != nil {
		(*handler)(failure)
	}
}

// SpanPipelineDiagnostics returns a point-in-time snapshot of queue pressure
// and drop counters.
func (w *Writer) SpanPipelineDiagnostics() PipelineDiagnostics {
	if w == nil {
		return PipelineDiagnostics{}
	}

	capacity := cap(w.queue)
	depth := len(w.queue)
	highWatermark := int(w.queueDepthHighWatermark.Load())
	if depth > highWatermark {
		highWatermark = depth
	}
	utilization := queueUtilizationPct(depth, capacity)
	enqueueDropped := w.enqueueDroppedTotal.Load()
	writeDropped := w.writeDroppedTotal.Load()

	snapshot := PipelineDiagnostics{
		QueueCapacity:                    capacity,
		QueueDepth:                       depth,
		QueueDepthHighWatermark:          highWatermark,
		QueueUtilizationPct:              utilization,
		QueueHighWatermarkUtilizationPct: queueUtilizationPct(highWatermark, capacity),
		QueuePressureState:               queuePressureState(utilization),
		EnqueueAcceptedTotal:             w.enqueueAcceptedTotal.Load(),
		EnqueueDroppedTotal:              enqueueDropped,
		WrittenTotal:                     w.writtenTotal.Load(),
		WriteDroppedTotal:                writeDropped,
		TotalDroppedTotal:                enqueueDropped + writeDropped,
		StoreDriver:                      w.driver,
	}
	if ts := w.lastEnqueueDropUnixNano.Load(); ts > 0 {
		last := time.Unix(0, ts).UTC()
		snapshot.LastEnqueueDropAt = &last
	}
	if ts := w.lastWriteDropUnixNano.Load(); ts > 0 {
		last := time.Unix(0, ts).UTC()
		snapshot.LastWriteDropAt = &last
	}
	snapshot.LastWriteDropOperation, _ = w.lastWriteDropOperation.Load().(string)

	for class, counter := range w.failuresByClass {
		if v := counter.Load(); v > 0 {
			if snapshot.WriteFailuresByClass == nil {
				snapshot.WriteFailuresByClass = make(map[string]int64)
			}
			snapshot.WriteFailuresByClass[class] = v
		}
	}
	return snapshot
}

func (w *Writer) observeQueueDepth(depth int) {
	value := int64(depth)
	for {
		current := w.queueDepthHighWatermark.Load()
		if value <= current || w.queueDepthHighWatermark.CompareAndSwap(current, value) {
			return
		}
	}
}

func queueUtilizationPct(depth, capacity int) int {
	if capacity <= 0 || depth <= 0 {
		return 0
	}
	if depth >= capacity {
		return 100
	}
	return int((int64(depth) * 100) / int64(capacity))
}

func queuePressureState(utilizationPct int) string {
	switch {
	case utilizationPct >= 100:
		return QueuePressureSaturated
	case utilizationPct >= 80:
		return QueuePressureHigh
	case utilizationPct >= 50:
		return QueuePressureElevated
	default:
		return QueuePressureOK
	}
}
