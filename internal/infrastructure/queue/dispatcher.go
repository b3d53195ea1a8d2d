// Package queue records security events off the request path.
package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	defaultBuffer  = 256
	recordTimeout  = 5 * time.Second
)

// Dispatcher routes security events to a fixed set of workers using
// consistent hashing on the actor (or client IP for anonymous events), so
// events from one source are recorded in order.
type Dispatcher struct {
	workers []chan *domain.AuditEvent
	repo    ports.AuditRepository
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ ports.SecurityEventSink = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers, each
// holding up to buffer pending events. Non-positive values select the defaults.
func NewDispatcher(numWorkers, buffer int, repo ports.AuditRepository, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	d := &Dispatcher{
		workers: make([]chan *domain.AuditEvent, numWorkers),
		repo:    repo,
		log:     log.With().Str("component", "security_events").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan *domain.AuditEvent, buffer)
	}
	return d
}

// Start launches all worker goroutines. Workers exit once Stop has closed
// their channel and the backlog is drained.
func (d *Dispatcher) Start() {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}
}

// Stop closes the queues and waits for the workers to drain them, or for ctx
// to end, whichever comes first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue never blocks: when the worker's queue is full, or the dispatcher is
// stopped, the event is dropped and counted.
func (d *Dispatcher) Enqueue(event *domain.AuditEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.SecurityEventsTotal.WithLabelValues(event.EventType, "dropped").Inc()
		return false
	}

	idx := d.shardIndex(shardKey(event))
	select {
	case d.workers[idx] <- event:
		metrics.SecurityEventsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
		return true
	default:
		metrics.SecurityEventsTotal.WithLabelValues(event.EventType, "dropped").Inc()
		d.log.Warn().Str("event_type", event.EventType).Int("worker_id", idx).Msg("security event queue full, dropping event")
		return false
	}
}

func shardKey(e *domain.AuditEvent) string {
	switch {
	case e.UserID != nil:
		return *e.UserID
	case e.IPAddress != nil:
		return *e.IPAddress
	default:
		return e.EventType
	}
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(id int, ch <-chan *domain.AuditEvent) {
	defer d.wg.Done()
	depth := metrics.SecurityEventsQueueDepth.WithLabelValues(strconv.Itoa(id))

	for event := range ch {
		depth.Dec()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		_, err := d.repo.Record(ctx, event)
		cancel()
		if err != nil {
			metrics.SecurityEventsTotal.WithLabelValues(event.EventType, "failed").Inc()
			d.log.Error().Err(err).
				Str("event_type", event.EventType).
				Int("worker_id", id).
				Msg("security event recording failed")
			continue
		}
		metrics.SecurityEventsTotal.WithLabelValues(event.EventType, "recorded").Inc()
	}
}
