package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

const defaultQueueSize = 256

// Options configures a Dispatcher.
type Options struct {
	// QueueSize bounds the number of pending events. Default 256.
	QueueSize int
	Logger    stage.Logger
}

type job struct {
	id    uuid.UUID
	kind  string
	fn    func(*stage.Engine) error
	reply chan error
}

// Dispatcher serialises all engine access onto a single goroutine.
type Dispatcher struct {
	engine    *stage.Engine
	telemetry *Telemetry
	logger    stage.Logger

	queue   chan job
	stopped chan struct{}
	started atomic.Bool

	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher creates a dispatcher for engine. A nil telemetry disables
// outbound notifications.
func NewDispatcher(engine *stage.Engine, telemetry *Telemetry, opts Options) *Dispatcher {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	if telemetry == nil {
		telemetry = NewTelemetry(TelemetryConfig{Logger: logger})
	}
	return &Dispatcher{
		engine:    engine,
		telemetry: telemetry,
		logger:    logger,
		queue:     make(chan job, size),
		stopped:   make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. It may only be called once.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("playback: dispatcher already running")
	}
	defer close(d.stopped)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.telemetry.Run(gctx) })
	g.Go(func() error { return d.loop(gctx) })
	return g.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) error {
	d.logger.Info("playback dispatcher started", "queue_size", cap(d.queue))
	for {
		select {
		case j := <-d.queue:
			d.exec(j)
		case <-ctx.Done():
			d.logger.Info("playback dispatcher stopped",
				"processed", d.processed.Load(),
				"failed", d.failed.Load(),
				"pending", len(d.queue),
			)
			return nil
		}
	}
}

func (d *Dispatcher) exec(j job) {
	err := d.safeCall(j.fn)
	d.processed.Add(1)
	if err != nil {
		d.failed.Add(1)
	}
	if j.reply != nil {
		j.reply <- err
		return
	}
	if err == nil {
		return
	}
	// Resolution misses are already reported through the engine's observer.
	if errors.Is(err, stage.ErrObjectNotFound) || errors.Is(err, stage.ErrUnitNotFound) {
		d.logger.Debug("timeline event had no target", "event_id", j.id, "kind", j.kind, "error", err)
		return
	}
	d.logger.Warn("timeline event failed", "event_id", j.id, "kind", j.kind, "error", err)
}

func (d *Dispatcher) safeCall(fn func(*stage.Engine) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("playback: panic in engine call: %v", r)
		}
	}()
	return fn(d.engine)
}

func (d *Dispatcher) enqueue(j job) error {
	select {
	case <-d.stopped:
		return ErrStopped
	default:
	}
	select {
	case d.queue <- j:
		return nil
	default:
		d.logger.Warn("playback queue full, dropping event", "event_id", j.id, "kind", j.kind)
		return ErrQueueFull
	}
}

// enqueueWait blocks until the queue has room. Broker deliveries use it so
// keyframes are never dropped; the broker client applies backpressure instead.
func (d *Dispatcher) enqueueWait(j job) error {
	select {
	case <-d.stopped:
		return ErrStopped
	default:
	}
	select {
	case d.queue <- j:
		return nil
	default:
	}
	d.logger.Debug("playback queue full, waiting", "event_id", j.id, "kind", j.kind)
	select {
	case d.queue <- j:
		return nil
	case <-d.stopped:
		return ErrStopped
	}
}

func (d *Dispatcher) await(ctx context.Context, j job) error {
	j.reply = make(chan error, 1)
	if err := d.enqueue(j); err != nil {
		return err
	}
	select {
	case err := <-j.reply:
		return err
	case <-d.stopped:
		// The job may have completed just before shutdown.
		select {
		case err := <-j.reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Event Operations ───────────────────────────────────────────

func (d *Dispatcher) objectJob(id uuid.UUID, ev stage.ObjectUpdateEvent, out *stage.Result) job {
	return job{id: id, kind: mqtt.TimelineObject, fn: func(e *stage.Engine) error {
		start := time.Now()
		res, err := e.HandleObjectUpdate(ev)
		if err != nil {
			return err
		}
		d.telemetry.NodeUpdated(NodeUpdate{
			EventID:     id,
			Name:        res.Node,
			Strategy:    res.Strategy,
			Reparented:  res.Reparented,
			Propagation: res.Propagation,
			State:       res.State,
			At:          start,
		}, time.Since(start))
		if out != nil {
			*out = res
		}
		return nil
	}}
}

func (d *Dispatcher) transformJob(id uuid.UUID, ev stage.TransformUpdateEvent, out *int) job {
	return job{id: id, kind: mqtt.TimelineTransform, fn: func(e *stage.Engine) error {
		start := time.Now()
		n, err := e.HandleTransformUpdate(ev)
		if err != nil {
			return err
		}
		d.telemetry.UnitUpdated(UnitUpdate{EventID: id, Unit: ev.UnitName, Applied: n, At: start}, time.Since(start))
		if out != nil {
			*out = n
		}
		return nil
	}}
}

// SubmitObjectUpdate queues an object keyframe without waiting.
func (d *Dispatcher) SubmitObjectUpdate(ev stage.ObjectUpdateEvent) (uuid.UUID, error) {
	id := uuid.New()
	return id, d.enqueue(d.objectJob(id, ev, nil))
}

// SubmitTransformUpdate queues a unit keyframe without waiting.
func (d *Dispatcher) SubmitTransformUpdate(ev stage.TransformUpdateEvent) (uuid.UUID, error) {
	id := uuid.New()
	return id, d.enqueue(d.transformJob(id, ev, nil))
}

// ApplyObjectUpdate queues an object keyframe and waits for its result.
func (d *Dispatcher) ApplyObjectUpdate(ctx context.Context, ev stage.ObjectUpdateEvent) (stage.Result, error) {
	var res stage.Result
	err := d.await(ctx, d.objectJob(uuid.New(), ev, &res))
	return res, err
}

// ApplyTransformUpdate queues a unit keyframe and waits for the number of
// members moved.
func (d *Dispatcher) ApplyTransformUpdate(ctx context.Context, ev stage.TransformUpdateEvent) (int, error) {
	var n int
	err := d.await(ctx, d.transformJob(uuid.New(), ev, &n))
	return n, err
}

// Do runs fn on the engine goroutine and waits for it. Use it for reads
// that must not race with playback.
func (d *Dispatcher) Do(ctx context.Context, fn func(*stage.Engine) error) error {
	return d.await(ctx, job{id: uuid.New(), kind: "query", fn: fn})
}

// HandleMessage decodes a timeline message and queues it, waiting while the
// queue is full. It matches mqtt.MessageHandler.
func (d *Dispatcher) HandleMessage(topic string, payload []byte) error {
	switch mqtt.TimelineKind(topic) {
	case mqtt.TimelineObject:
		var ev stage.ObjectUpdateEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		return d.enqueueWait(d.objectJob(uuid.New(), ev, nil))
	case mqtt.TimelineTransform:
		var ev stage.TransformUpdateEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		return d.enqueueWait(d.transformJob(uuid.New(), ev, nil))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}

// ─── Stats ──────────────────────────────────────────────────────

// Stats summarises dispatcher activity.
type Stats struct {
	Pending          int    `json:"pending"`
	Processed        uint64 `json:"processed"`
	Failed           uint64 `json:"failed"`
	TelemetrySent    uint64 `json:"telemetry_sent"`
	TelemetryDropped uint64 `json:"telemetry_dropped"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Pending:          len(d.queue),
		Processed:        d.processed.Load(),
		Failed:           d.failed.Load(),
		TelemetrySent:    d.telemetry.Published(),
		TelemetryDropped: d.telemetry.Dropped(),
	}
}
