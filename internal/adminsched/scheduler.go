package adminsched

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/clock"
	"github.com/wisbric/pdpsync/internal/httpclient"
)

const pollInterval = 2 * time.Second

type task struct {
	queue    QueueName
	batch    Batch
	resultCh chan Result
}

type pendingItem struct {
	queue QueueName
	run   func()
}

// Scheduler dispatches admin-job batches across four FIFO queues with a
// shared in-flight cap, driven by a ticker loop generalized from a single
// poll to a four-queue, capacity-bounded dispatcher.
type Scheduler struct {
	mu       sync.Mutex
	queues   map[QueueName][]*task
	inFlight map[string]struct{}
	pending  []pendingItem

	running       bool
	stopRequested bool
	drainWaiters  []chan struct{}

	client  *adminClient
	clk     clock.Clock
	logger  *slog.Logger
	metric  *prometheus.CounterVec // pdpsync_admin_batches_total{queue,result}
	fatalCh chan error
}

// New creates a Scheduler for the given admin API target.
func New(cfg AdminConfig, http *httpclient.Client, clk clock.Clock, logger *slog.Logger, metric *prometheus.CounterVec) *Scheduler {
	return &Scheduler{
		queues: map[QueueName][]*task{
			QueuePreview:          {},
			QueuePublish:          {},
			QueueUnpublishLive:    {},
			QueueUnpublishPreview: {},
		},
		inFlight: map[string]struct{}{},
		client:   newAdminClient(cfg, http),
		clk:      clk,
		logger:   logger,
		metric:   metric,
		fatalCh:  make(chan error, 1),
	}
}

// PreviewAndPublish enqueues a batch into the Preview queue. Records that
// come back previewed continue on to Publish automatically; the returned
// channel delivers the terminal Result once Publish finishes (or the batch
// fails at either stage).
func (s *Scheduler) PreviewAndPublish(records []BatchRecord, locale string, batchNo int) <-chan Result {
	t := &task{
		queue:    QueuePreview,
		batch:    Batch{Records: records, Locale: locale, BatchNo: batchNo},
		resultCh: make(chan Result, 1),
	}
	s.enqueue(QueuePreview, t)
	return t.resultCh
}

// UnpublishAndDelete enqueues a batch into the UnpublishLive queue, carrying
// through to UnpublishPreview the same way PreviewAndPublish carries
// Preview through to Publish.
func (s *Scheduler) UnpublishAndDelete(records []BatchRecord, locale string, batchNo int) <-chan Result {
	t := &task{
		queue:    QueueUnpublishLive,
		batch:    Batch{Records: records, Locale: locale, BatchNo: batchNo},
		resultCh: make(chan Result, 1),
	}
	s.enqueue(QueueUnpublishLive, t)
	return t.resultCh
}

// FatalErr delivers the first GlobalError encountered, if any. The caller
// (the orchestrator) should select on it alongside its own run loop and
// abort the run if it fires.
func (s *Scheduler) FatalErr() <-chan error { return s.fatalCh }

func (s *Scheduler) enqueue(q QueueName, t *task) {
	s.mu.Lock()
	s.queues[q] = append(s.queues[q], t)
	s.mu.Unlock()
}

// StartProcessing begins the 1000ms tick loop. It is idempotent: calling it
// while already running is a no-op.
func (s *Scheduler) StartProcessing(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopRequested = false
	s.mu.Unlock()

	go s.loop(ctx)
}

// StopProcessing requests that the scheduler drain its queues and in-flight
// batches, then stop ticking. The returned channel closes once every queue,
// the pending list, and the in-flight set are all empty. Calling it more
// than once, or after the scheduler is already drained, is safe.
func (s *Scheduler) StopProcessing() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopRequested = true
	ch := make(chan struct{})
	if !s.running || s.isDrainedLocked() {
		s.running = false
		close(ch)
		return ch
	}
	s.drainWaiters = append(s.drainWaiters, ch)
	return ch
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.tick(ctx)

			s.mu.Lock()
			if s.stopRequested && s.isDrainedLocked() {
				s.running = false
				s.notifyDrainedLocked()
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
		}
	}
}

// tick pops at most one task from each queue, publish first so publish work
// never starves behind a long preview backlog.
func (s *Scheduler) tick(ctx context.Context) {
	for _, q := range []QueueName{QueuePublish, QueuePreview, QueueUnpublishLive, QueueUnpublishPreview} {
		s.mu.Lock()
		items := s.queues[q]
		if len(items) == 0 {
			s.mu.Unlock()
			continue
		}
		t := items[0]
		s.queues[q] = items[1:]
		s.mu.Unlock()

		s.dispatch(ctx, q, t)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, q QueueName, t *task) {
	s.trackInFlight(pendingItem{queue: q, run: func() { s.runBatch(ctx, t) }})
}

func (s *Scheduler) trackInFlight(item pendingItem) {
	s.mu.Lock()
	if len(s.inFlight) < InFlightCapacity {
		id := uuid.NewString()
		s.inFlight[id] = struct{}{}
		s.mu.Unlock()
		go s.execSlot(id, item.run)
		return
	}
	s.pending = append(s.pending, item)
	s.mu.Unlock()
}

func (s *Scheduler) execSlot(id string, run func()) {
	run()

	s.mu.Lock()
	delete(s.inFlight, id)
	s.promotePendingLocked()
	s.notifyDrainedIfLocked()
	s.mu.Unlock()
}

// promotePendingLocked reorders the pending list so publish-origin items
// sort before everything else, then starts as many as current capacity
// allows. Must be called with s.mu held.
func (s *Scheduler) promotePendingLocked() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].queue == QueuePublish && s.pending[j].queue != QueuePublish
	})
	for len(s.pending) > 0 && len(s.inFlight) < InFlightCapacity {
		item := s.pending[0]
		s.pending = s.pending[1:]
		id := uuid.NewString()
		s.inFlight[id] = struct{}{}
		go s.execSlot(id, item.run)
	}
}

func (s *Scheduler) isDrainedLocked() bool {
	if len(s.inFlight) != 0 || len(s.pending) != 0 {
		return false
	}
	for _, q := range s.queues {
		if len(q) != 0 {
			return false
		}
	}
	return true
}

func (s *Scheduler) notifyDrainedLocked() {
	for _, ch := range s.drainWaiters {
		close(ch)
	}
	s.drainWaiters = nil
}

// notifyDrainedIfLocked signals drain waiters as soon as the scheduler goes
// idle, even between ticks, so StopProcessing doesn't wait a full tick past
// the last batch finishing. Must be called with s.mu held.
func (s *Scheduler) notifyDrainedIfLocked() {
	if s.stopRequested && s.isDrainedLocked() {
		s.notifyDrainedLocked()
	}
}

// runBatch executes one queue hop: filters records eligible for this stage,
// submits the bulk job (or takes the mock stub), polls to completion, marks
// per-record outcomes, and transitions to the next stage or resolves.
func (s *Scheduler) runBatch(ctx context.Context, t *task) {
	indices, paths := filterRecords(t.queue, t.batch.Records)
	if len(paths) == 0 {
		s.transition(ctx, t)
		return
	}

	if s.client.cfg.isMock() {
		if err := s.clk.Sleep(ctx, mockDelay); err != nil {
			s.failIndices(t, indices, err)
			s.resolve(t)
			return
		}
		outcomes := make([]PathOutcome, len(paths))
		for i, p := range paths {
			outcomes[i] = PathOutcome{Path: p, Status: 200}
		}
		s.applyOutcomes(t, indices, outcomes)
		s.recordMetric(t.queue, !anyFailed(t.batch.Records, indices))
		s.transition(ctx, t)
		return
	}

	var job JobHandle
	err := clock.Do(ctx, s.clk, clock.RetryConfig{MaxAttempts: 3, Delay: clock.LinearDelay(5000)}, func(ctx context.Context) error {
		h, err := s.client.submit(ctx, t.queue, paths)
		if err != nil {
			return err
		}
		job = h
		return nil
	})
	if err != nil {
		berr := &apperr.BatchError{Queue: string(t.queue), Cause: err}
		s.failIndices(t, indices, berr)
		s.recordMetric(t.queue, false)
		s.logger.Error("admin batch submission failed", "queue", t.queue, "batch_no", t.batch.BatchNo, "error", berr)
		s.resolve(t)
		return
	}

	_, outcomes, err := s.pollUntilDone(ctx, job)
	if err != nil {
		gerr := &apperr.GlobalError{Op: "poll_job", Cause: err}
		select {
		case s.fatalCh <- gerr:
		default:
		}
		s.failIndices(t, indices, gerr)
		s.recordMetric(t.queue, false)
		s.logger.Error("admin job polling failed", "queue", t.queue, "job", job.Name, "error", err)
		s.resolve(t)
		return
	}

	s.applyOutcomes(t, indices, outcomes)
	s.recordMetric(t.queue, !anyFailed(t.batch.Records, indices))
	s.transition(ctx, t)
}

func (s *Scheduler) pollUntilDone(ctx context.Context, job JobHandle) (JobHandle, []PathOutcome, error) {
	current := job
	for {
		if err := s.clk.Sleep(ctx, pollInterval); err != nil {
			return JobHandle{}, nil, err
		}

		var (
			h        JobHandle
			outcomes []PathOutcome
		)
		err := clock.Do(ctx, s.clk, clock.RetryConfig{MaxAttempts: 3, Delay: clock.LinearDelay(5000)}, func(ctx context.Context) error {
			var pollErr error
			h, outcomes, pollErr = s.client.poll(ctx, current)
			return pollErr
		})
		if err != nil {
			return JobHandle{}, nil, err
		}
		current = h
		if current.State == "stopped" {
			return current, outcomes, nil
		}
	}
}

func (s *Scheduler) applyOutcomes(t *task, indices []int, outcomes []PathOutcome) {
	byPath := make(map[string]int, len(outcomes))
	for _, o := range outcomes {
		byPath[o.Path] = o.Status
	}
	now := s.clk.Now()
	for _, i := range indices {
		rec := &t.batch.Records[i]
		status, ok := byPath[rec.Path]
		if !ok || status < 200 || status >= 300 {
			rec.Failed = true
			rec.Error = fmt.Sprintf("admin reported status %d for %s", status, rec.Path)
			continue
		}
		switch t.queue {
		case QueuePreview:
			rec.PreviewedAt = &now
		case QueuePublish:
			rec.PublishedAt = &now
		case QueueUnpublishLive:
			rec.LiveUnpublishedAt = &now
		case QueueUnpublishPreview:
			rec.PreviewUnpublishedAt = &now
		}
	}
}

func (s *Scheduler) failIndices(t *task, indices []int, err error) {
	for _, i := range indices {
		t.batch.Records[i].Failed = true
		t.batch.Records[i].Error = err.Error()
	}
}

// transition moves a batch to the next stage, or resolves it when the
// current stage is terminal. Preview carries through to Publish;
// UnpublishLive carries through to UnpublishPreview — Publish and
// UnpublishPreview are both terminal.
func (s *Scheduler) transition(ctx context.Context, t *task) {
	switch t.queue {
	case QueuePreview:
		t.queue = QueuePublish
		s.enqueue(QueuePublish, t)
	case QueueUnpublishLive:
		t.queue = QueueUnpublishPreview
		s.enqueue(QueueUnpublishPreview, t)
	default:
		s.resolve(t)
	}
}

func (s *Scheduler) resolve(t *task) {
	failed := false
	for _, r := range t.batch.Records {
		if r.Failed {
			failed = true
			break
		}
	}
	select {
	case t.resultCh <- Result{Batch: t.batch, Failed: failed}:
	default:
	}
}

func (s *Scheduler) recordMetric(q QueueName, ok bool) {
	if s.metric == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	s.metric.WithLabelValues(string(q), result).Inc()
}

func anyFailed(records []BatchRecord, indices []int) bool {
	for _, i := range indices {
		if records[i].Failed {
			return true
		}
	}
	return false
}

// filterRecords returns the indices and paths eligible for submission at a
// given stage: Preview and UnpublishLive consider every record; Publish
// only records that were previewed; UnpublishPreview only records that
// were unpublished live.
func filterRecords(q QueueName, records []BatchRecord) ([]int, []string) {
	indices := make([]int, 0, len(records))
	paths := make([]string, 0, len(records))
	for i, r := range records {
		switch q {
		case QueuePublish:
			if r.PreviewedAt == nil {
				continue
			}
		case QueueUnpublishPreview:
			if r.LiveUnpublishedAt == nil {
				continue
			}
		}
		indices = append(indices, i)
		paths = append(paths, r.Path)
	}
	return indices, paths
}
