package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"unshub/pkg/logging"
)

// Config sizes the lane fan-out. Zero values fall back to the defaults.
type Config struct {
	// Lanes is the number of worker channels. Default: logical CPU count.
	Lanes int

	// MaxConcurrentPerLane bounds how many items of one lane may be in
	// flight at once. Default 4.
	MaxConcurrentPerLane int

	// LaneCapacity bounds each lane channel; writers block when full.
	// Default 1000.
	LaneCapacity int

	// PriorityMultiplier scales the priority lane's concurrency relative to
	// MaxConcurrentPerLane. Default 2.
	PriorityMultiplier int
}

func (c Config) withDefaults() Config {
	if c.Lanes <= 0 {
		c.Lanes = runtime.NumCPU()
	}
	if c.MaxConcurrentPerLane <= 0 {
		c.MaxConcurrentPerLane = 4
	}
	if c.LaneCapacity <= 0 {
		c.LaneCapacity = 1000
	}
	if c.PriorityMultiplier <= 0 {
		c.PriorityMultiplier = 2
	}
	return c
}

// Snapshot is an immutable statistics view of the processor.
type Snapshot struct {
	Processed    int64   `json:"processed"`
	Errors       int64   `json:"errors"`
	Queued       int64   `json:"queued"`
	LaneWorkload []int64 `json:"laneWorkload"`
}

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("queue processor stopped")

// Processor is a multi-lane bounded-channel worker pool with one priority
// lane. It decouples fast ingestion from slower downstream work.
//
// Ordering: none globally. Each lane is FIFO off its channel, but with
// MaxConcurrentPerLane > 1 per-item workers may complete out of order;
// callers that need strict order sequence inside their processor function
// or run with MaxConcurrentPerLane=1.
type Processor[T any] struct {
	config  Config
	process func(ctx context.Context, item T) error
	name    string

	lanes    []chan T
	priority chan T

	laneSems    []*semaphore.Weighted
	prioritySem *semaphore.Weighted

	laneWork []atomic.Int64

	processed atomic.Int64
	errs      atomic.Int64
	queued    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	// pauseMu gates intake: Pause write-locks it so every Enqueue blocks
	// until resume. Used to quiesce ingestion around hierarchy swaps.
	pauseMu sync.RWMutex

	closeMu sync.RWMutex
	closed  bool

	readers  sync.WaitGroup
	inFlight sync.WaitGroup
}

// NewProcessor creates a processor running fn for every item. The processor
// is inert until Start.
func NewProcessor[T any](name string, cfg Config, fn func(ctx context.Context, item T) error) *Processor[T] {
	cfg = cfg.withDefaults()
	p := &Processor[T]{
		config:   cfg,
		process:  fn,
		name:     name,
		lanes:    make([]chan T, cfg.Lanes),
		priority: make(chan T, cfg.LaneCapacity),
		laneSems: make([]*semaphore.Weighted, cfg.Lanes),
		laneWork: make([]atomic.Int64, cfg.Lanes),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan T, cfg.LaneCapacity)
		p.laneSems[i] = semaphore.NewWeighted(int64(cfg.MaxConcurrentPerLane))
	}
	p.prioritySem = semaphore.NewWeighted(int64(cfg.PriorityMultiplier * cfg.MaxConcurrentPerLane))
	return p
}

// Start launches one reader per lane plus the priority reader. The given
// context cancels in-flight processor calls cooperatively.
func (p *Processor[T]) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := range p.lanes {
		p.readers.Add(1)
		go p.runLane(i, p.lanes[i], p.laneSems[i], &p.laneWork[i])
	}
	p.readers.Add(1)
	go p.runLane(-1, p.priority, p.prioritySem, nil)

	logging.Info("Queue", "%s started (lanes=%d, perLane=%d, capacity=%d)",
		p.name, p.config.Lanes, p.config.MaxConcurrentPerLane, p.config.LaneCapacity)
}

// runLane is the single reader of one channel. For each item it takes one
// concurrency slot and runs the processor asynchronously, so a slow item
// does not stall the lane up to the concurrency bound.
func (p *Processor[T]) runLane(index int, ch chan T, sem *semaphore.Weighted, work *atomic.Int64) {
	defer p.readers.Done()

	for item := range ch {
		if err := sem.Acquire(p.ctx, 1); err != nil {
			// Cancelled: run the remaining drain synchronously without a
			// slot cap; processors observe the cancelled context.
			p.runItem(index, item, work)
			continue
		}
		p.inFlight.Add(1)
		go func(item T) {
			defer p.inFlight.Done()
			defer sem.Release(1)
			p.runItem(index, item, work)
		}(item)
	}
}

func (p *Processor[T]) runItem(index int, item T, work *atomic.Int64) {
	defer func() {
		if work != nil {
			work.Add(-1)
		}
		p.queued.Add(-1)
		if r := recover(); r != nil {
			p.errs.Add(1)
			logging.Error("Queue", fmt.Errorf("%v", r), "%s lane %d: processor panicked", p.name, index)
		}
	}()

	if err := p.process(p.ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			// Cooperative shutdown, never fatal.
			return
		}
		p.errs.Add(1)
		logging.Warn("Queue", "%s lane %d: processor error: %v", p.name, index, err)
		return
	}
	p.processed.Add(1)
}

// Enqueue routes an item to the least-loaded lane, or to the priority lane.
// It blocks when the target lane is full (back-pressure) and returns the
// context error when the caller or the processor is cancelled first. Items
// are never silently dropped.
func (p *Processor[T]) Enqueue(ctx context.Context, item T, priority bool) error {
	p.pauseMu.RLock()
	defer p.pauseMu.RUnlock()

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrStopped
	}

	var ch chan T
	var work *atomic.Int64
	if priority {
		ch = p.priority
	} else {
		lane := p.leastLoadedLane()
		ch = p.lanes[lane]
		work = &p.laneWork[lane]
	}

	if work != nil {
		work.Add(1)
	}
	p.queued.Add(1)

	select {
	case ch <- item:
		return nil
	case <-ctx.Done():
		p.undoEnqueue(work)
		return ctx.Err()
	case <-p.ctx.Done():
		p.undoEnqueue(work)
		return p.ctx.Err()
	}
}

// EnqueueBatch distributes items round-robin across lanes; priority batches
// go entirely to the priority lane.
func (p *Processor[T]) EnqueueBatch(ctx context.Context, items []T, priority bool) error {
	if priority {
		for _, item := range items {
			if err := p.Enqueue(ctx, item, true); err != nil {
				return err
			}
		}
		return nil
	}

	p.pauseMu.RLock()
	p.closeMu.RLock()
	closed := p.closed
	lanes := len(p.lanes)
	p.closeMu.RUnlock()
	p.pauseMu.RUnlock()
	if closed {
		return ErrStopped
	}

	start := int(p.queued.Load())
	for i, item := range items {
		lane := (start + i) % lanes
		if err := p.enqueueToLane(ctx, item, lane); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor[T]) enqueueToLane(ctx context.Context, item T, lane int) error {
	p.pauseMu.RLock()
	defer p.pauseMu.RUnlock()
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrStopped
	}

	p.laneWork[lane].Add(1)
	p.queued.Add(1)
	select {
	case p.lanes[lane] <- item:
		return nil
	case <-ctx.Done():
		p.undoEnqueue(&p.laneWork[lane])
		return ctx.Err()
	case <-p.ctx.Done():
		p.undoEnqueue(&p.laneWork[lane])
		return p.ctx.Err()
	}
}

func (p *Processor[T]) undoEnqueue(work *atomic.Int64) {
	if work != nil {
		work.Add(-1)
	}
	p.queued.Add(-1)
}

func (p *Processor[T]) leastLoadedLane() int {
	best := 0
	bestLoad := p.laneWork[0].Load()
	for i := 1; i < len(p.laneWork); i++ {
		if load := p.laneWork[i].Load(); load < bestLoad {
			best = i
			bestLoad = load
		}
	}
	return best
}

// Pause blocks all intake and returns the func that resumes it. Processing
// of already-queued items continues while paused.
func (p *Processor[T]) Pause() (resume func()) {
	p.pauseMu.Lock()
	var once sync.Once
	return func() { once.Do(p.pauseMu.Unlock) }
}

// Stop closes intake, drains the lanes, waits for in-flight work and
// releases the readers. Calls after the first return immediately.
func (p *Processor[T]) Stop() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	p.closeMu.Unlock()

	for _, ch := range p.lanes {
		close(ch)
	}
	close(p.priority)

	p.readers.Wait()
	p.inFlight.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	logging.Info("Queue", "%s stopped (processed=%d errors=%d)", p.name, p.processed.Load(), p.errs.Load())
}

// Statistics returns an immutable snapshot.
func (p *Processor[T]) Statistics() Snapshot {
	lanes := make([]int64, len(p.laneWork))
	for i := range p.laneWork {
		lanes[i] = p.laneWork[i].Load()
	}
	return Snapshot{
		Processed:    p.processed.Load(),
		Errors:       p.errs.Load(),
		Queued:       p.queued.Load(),
		LaneWorkload: lanes,
	}
}
