package stagedata

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

const (
	defaultJournalBuffer = 256
	drainTimeout         = 2 * time.Second
)

// MissRecorder is the write side of the miss journal.
type MissRecorder interface {
	RecordMiss(ctx context.Context, m stage.Miss) error
}

// Journal writes resolution misses to a MissRecorder off the playback path.
//
// ObserveMiss never blocks: when the buffer is full the miss is counted as
// dropped (it is still in the structured log and the in-memory MissLog).
type Journal struct {
	repo   MissRecorder
	ch     chan stage.Miss
	logger stage.Logger

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewJournal creates a journal buffering up to size misses (default 256).
func NewJournal(repo MissRecorder, size int, logger stage.Logger) *Journal {
	if size <= 0 {
		size = defaultJournalBuffer
	}
	return &Journal{
		repo:   repo,
		ch:     make(chan stage.Miss, size),
		logger: logger,
	}
}

// ObserveMiss implements stage.Observer.
func (j *Journal) ObserveMiss(m stage.Miss) {
	select {
	case j.ch <- m:
	default:
		j.dropped.Add(1)
	}
}

// Run writes queued misses until ctx is cancelled, then drains what is left
// with a short deadline.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case m := <-j.ch:
			j.record(ctx, m)
		case <-ctx.Done():
			j.drain()
			return nil
		}
	}
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case m := <-j.ch:
			j.record(ctx, m)
		default:
			return
		}
	}
}

func (j *Journal) record(ctx context.Context, m stage.Miss) {
	if err := j.repo.RecordMiss(ctx, m); err != nil {
		if j.logger != nil {
			j.logger.Error("recording resolution miss", "name", m.Name, "kind", string(m.Kind), "error", err)
		}
		return
	}
	j.written.Add(1)
}

// Written returns the number of misses stored.
func (j *Journal) Written() uint64 { return j.written.Load() }

// Dropped returns the number of misses discarded because the buffer was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }
