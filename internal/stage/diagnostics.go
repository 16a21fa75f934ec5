package stage

import (
	"sync"
	"time"
)

// MissKind classifies a resolution miss.
type MissKind string

// Miss kinds.
const (
	MissObject       MissKind = "object"
	MissProp         MissKind = "prop"
	MissJoint        MissKind = "joint"
	MissLocator      MissKind = "locator"
	MissAsset        MissKind = "asset"
	MissSpec         MissKind = "spec"
	MissAttachTarget MissKind = "attach_target"
	MissUnit         MissKind = "unit"
)

// Miss is the structured record of something that could not be resolved.
// Searched lists what was tried, so content authors can see why it failed.
type Miss struct {
	Kind     MissKind  `json:"kind"`
	Name     string    `json:"name"`
	Detail   string    `json:"detail,omitempty"`
	Searched []string  `json:"searched,omitempty"`
	At       time.Time `json:"at"`
}

// Observer receives resolution misses. Implementations must not block.
type Observer interface {
	ObserveMiss(m Miss)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(m Miss)

// ObserveMiss implements Observer.
func (f ObserverFunc) ObserveMiss(m Miss) { f(m) }

// Observers fans a miss out to several observers.
type Observers []Observer

// ObserveMiss implements Observer.
func (o Observers) ObserveMiss(m Miss) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveMiss(m)
		}
	}
}

type noopObserver struct{}

func (noopObserver) ObserveMiss(Miss) {}

// MissLog keeps the most recent misses in a fixed-size ring.
// It is safe for concurrent use.
type MissLog struct {
	mu    sync.Mutex
	buf   []Miss
	next  int
	full  bool
	total uint64
}

// DefaultMissLogSize is used when NewMissLog is given a non-positive size.
const DefaultMissLogSize = 256

// NewMissLog creates a ring holding up to size misses.
func NewMissLog(size int) *MissLog {
	if size <= 0 {
		size = DefaultMissLogSize
	}
	return &MissLog{buf: make([]Miss, size)}
}

// ObserveMiss implements Observer.
func (l *MissLog) ObserveMiss(m Miss) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = m
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.total++
}

// Recent returns up to limit misses, newest first. limit <= 0 returns all held.
func (l *MissLog) Recent(limit int) []Miss {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Miss, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Total returns the number of misses observed since creation.
func (l *MissLog) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// reporter logs a miss and forwards it to the observer.
type reporter struct {
	logger   Logger
	observer Observer
	now      func() time.Time
}

func newReporter(logger Logger, observer Observer) reporter {
	if logger == nil {
		logger = noopLogger{}
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return reporter{logger: logger, observer: observer, now: time.Now}
}

func (r reporter) miss(kind MissKind, name, detail string, searched ...string) {
	m := Miss{
		Kind:     kind,
		Name:     name,
		Detail:   detail,
		Searched: searched,
		At:       r.now().UTC(),
	}
	r.logger.Warn("stage resolution miss",
		"kind", string(kind),
		"name", name,
		"detail", detail,
		"searched", searched,
	)
	r.observer.ObserveMiss(m)
}
