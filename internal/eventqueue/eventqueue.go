// Package eventqueue implements a durable, priority, deduplicated,
// TTL-bounded work queue as a single read-modify-write record in the KV
// store.
package eventqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/pdpsync/internal/clock"
	"github.com/wisbric/pdpsync/internal/kvstore"
)

const kvKey = "event_queue/pending_events"

// Priority orders FIFO-within-priority dequeuing.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityNormal: 1, PriorityLow: 2}

// Kind is the event's mutation type.
type Kind string

const (
	KindProductUpdate Kind = "product_update"
	KindPriceUpdate   Kind = "price_update"
)

// Event is a queued unit of work.
type Event struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Kind          Kind            `json:"kind"`
	Priority      Priority        `json:"priority"`
	QueuedAt      time.Time       `json:"queued_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Stats are monotonic lifetime counters.
type Stats struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Duplicate int `json:"duplicate"`
}

type record struct {
	Events []Event `json:"events"`
	Stats  Stats   `json:"stats"`
}

// Config holds the queue's tunable knobs.
type Config struct {
	MaxQueueSize int
	MaxRetries   int
	DedupWindow  time.Duration
	QueueTTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 300 * time.Second
	}
	if c.QueueTTL <= 0 {
		c.QueueTTL = 3600 * time.Second
	}
	return c
}

// Queue is the durable event queue.
type Queue struct {
	kv  kvstore.Store
	clk clock.Clock
	cfg Config
}

// New creates a Queue.
func New(kv kvstore.Store, clk clock.Clock, cfg Config) *Queue {
	return &Queue{kv: kv, clk: clk, cfg: cfg.withDefaults()}
}

// EnqueueResult reports the outcome of Enqueue.
type EnqueueResult struct {
	Position       int
	QueueSize      int
	Duplicate      bool
	Dropped        bool // true when capacity pressure evicted the oldest entry
}

// Enqueue adds an event to the queue at the given priority. Duplicates
// within the dedup window are rejected; over-capacity pushes evict the
// oldest entry (bounded-buffer backpressure) rather than rejecting the
// newcomer.
func (q *Queue) Enqueue(ctx context.Context, sku string, kind Kind, priority Priority, payload json.RawMessage) (EnqueueResult, error) {
	now := q.clk.Now()
	rec, err := q.load(ctx)
	if err != nil {
		return EnqueueResult{}, err
	}
	rec = q.cleanup(rec, now)

	for _, e := range rec.Events {
		if e.SKU == sku && e.Kind == kind && e.QueuedAt.After(now.Add(-q.cfg.DedupWindow)) {
			rec.Stats.Duplicate++
			if err := q.save(ctx, rec); err != nil {
				return EnqueueResult{}, err
			}
			return EnqueueResult{Duplicate: true, QueueSize: len(rec.Events)}, nil
		}
	}

	dropped := false
	if len(rec.Events) >= q.cfg.MaxQueueSize {
		rec.Events = evictOldest(rec.Events)
		dropped = true
	}

	ev := Event{
		ID:       uuid.NewString(),
		SKU:      sku,
		Kind:     kind,
		Priority: priority,
		QueuedAt: now,
		Payload:  payload,
	}
	rec.Events = append(rec.Events, ev)
	sortByPriority(rec.Events)

	if err := q.save(ctx, rec); err != nil {
		return EnqueueResult{}, err
	}

	pos := indexOf(rec.Events, ev.ID)
	return EnqueueResult{Position: pos, QueueSize: len(rec.Events), Dropped: dropped}, nil
}

// Dequeue returns up to batchSize events, ordered by priority then FIFO.
// It does not remove them; call MarkProcessed once the caller has acted.
func (q *Queue) Dequeue(ctx context.Context, batchSize int) ([]Event, error) {
	rec, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	rec = q.cleanup(rec, q.clk.Now())
	if err := q.save(ctx, rec); err != nil {
		return nil, err
	}

	if batchSize <= 0 || batchSize > len(rec.Events) {
		batchSize = len(rec.Events)
	}
	out := make([]Event, batchSize)
	copy(out, rec.Events[:batchSize])
	return out, nil
}

// MarkProcessed records the outcome for the given event IDs. A failed
// event's attempts counter is incremented; once attempts reach MaxRetries
// it is removed and counted under Stats.Failed. A successful event is
// removed and counted under Stats.Processed.
func (q *Queue) MarkProcessed(ctx context.Context, ids []string, success bool) (Stats, error) {
	rec, err := q.load(ctx)
	if err != nil {
		return Stats{}, err
	}
	now := q.clk.Now()

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	var kept []Event
	for _, e := range rec.Events {
		if _, match := idSet[e.ID]; !match {
			kept = append(kept, e)
			continue
		}
		if success {
			rec.Stats.Processed++
			continue
		}
		e.Attempts++
		e.LastAttemptAt = now
		if e.Attempts >= q.cfg.MaxRetries {
			rec.Stats.Failed++
			continue
		}
		kept = append(kept, e)
	}
	rec.Events = kept

	if err := q.save(ctx, rec); err != nil {
		return Stats{}, err
	}
	return rec.Stats, nil
}

// Status reports queue size broken down by priority and type, plus
// lifetime statistics.
type StatusResult struct {
	QueueSize  int            `json:"queue_size"`
	ByPriority map[Priority]int `json:"by_priority"`
	ByType     map[Kind]int     `json:"by_type"`
	Stats      Stats            `json:"statistics"`
}

func (q *Queue) Status(ctx context.Context) (StatusResult, error) {
	rec, err := q.load(ctx)
	if err != nil {
		return StatusResult{}, err
	}
	rec = q.cleanup(rec, q.clk.Now())
	if err := q.save(ctx, rec); err != nil {
		return StatusResult{}, err
	}

	res := StatusResult{
		QueueSize:  len(rec.Events),
		ByPriority: map[Priority]int{},
		ByType:     map[Kind]int{},
		Stats:      rec.Stats,
	}
	for _, e := range rec.Events {
		res.ByPriority[e.Priority]++
		res.ByType[e.Kind]++
	}
	return res, nil
}

// Clear empties the queue, preserving lifetime statistics.
func (q *Queue) Clear(ctx context.Context) error {
	rec, err := q.load(ctx)
	if err != nil {
		return err
	}
	rec.Events = nil
	return q.save(ctx, rec)
}

// cleanup discards entries older than QueueTTL. Discarded entries are not
// counted anywhere: the Failed/Processed counters are left as they are and
// no statistic reports how many entries expired.
func (q *Queue) cleanup(rec record, now time.Time) record {
	cutoff := now.Add(-q.cfg.QueueTTL)
	var kept []Event
	for _, e := range rec.Events {
		if e.QueuedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	rec.Events = kept
	return rec
}

func evictOldest(events []Event) []Event {
	if len(events) == 0 {
		return events
	}
	oldestIdx := 0
	for i, e := range events {
		if e.QueuedAt.Before(events[oldestIdx].QueuedAt) {
			oldestIdx = i
		}
	}
	return append(events[:oldestIdx], events[oldestIdx+1:]...)
}

func sortByPriority(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return priorityRank[events[i].Priority] < priorityRank[events[j].Priority]
	})
}

func indexOf(events []Event, id string) int {
	for i, e := range events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) load(ctx context.Context) (record, error) {
	raw, ok, err := q.kv.Get(ctx, kvKey)
	if err != nil {
		return record{}, fmt.Errorf("loading event queue: %w", err)
	}
	if !ok {
		return record{}, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, fmt.Errorf("decoding event queue: %w", err)
	}
	return rec, nil
}

func (q *Queue) save(ctx context.Context, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding event queue: %w", err)
	}
	if err := q.kv.Put(ctx, kvKey, raw, 0); err != nil {
		return fmt.Errorf("saving event queue: %w", err)
	}
	return nil
}
