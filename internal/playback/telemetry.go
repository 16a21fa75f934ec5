package playback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// WebSocket channels.
const (
	ChannelNodeUpdated = "node.updated"
	ChannelUnitUpdated = "unit.updated"
	ChannelMiss        = "miss.recorded"
)

const defaultOutboxSize = 1024

// Publisher sends JSON to the message bus (mqtt.Client).
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Broadcaster pushes events to WebSocket subscribers (api.Hub).
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Recorder stores playback metrics (influxdb.Client).
type Recorder interface {
	WriteStageEvent(ev influxdb.StageEvent)
	WriteResolutionMiss(kind, name string, searched int, at time.Time)
}

// NodeUpdate is published after an object update is applied.
type NodeUpdate struct {
	EventID     uuid.UUID               `json:"event_id"`
	Name        string                  `json:"name"`
	Strategy    string                  `json:"strategy"`
	Reparented  bool                    `json:"reparented"`
	Propagation stage.PropagationResult `json:"propagation"`
	State       stage.NodeState         `json:"state"`
	At          time.Time               `json:"at"`
}

// UnitUpdate is published after a transform update is applied.
type UnitUpdate struct {
	EventID uuid.UUID `json:"event_id"`
	Unit    string    `json:"unit"`
	Applied int       `json:"applied"`
	At      time.Time `json:"at"`
}

type outbound struct {
	topic    string
	payload  any
	retained bool
}

// TelemetryConfig wires the telemetry sinks. Any sink may be nil.
type TelemetryConfig struct {
	Publisher   Publisher
	Broadcaster Broadcaster
	Recorder    Recorder
	Logger      stage.Logger
	BufferSize  int
}

// Telemetry fans applied events and misses out to MQTT, WebSocket clients
// and InfluxDB. It is also a stage.Observer.
type Telemetry struct {
	publisher   Publisher
	broadcaster Broadcaster
	recorder    Recorder
	logger      stage.Logger
	topics      mqtt.Topics

	out       chan outbound
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewTelemetry creates the telemetry fan-out. Run must be started for MQTT
// messages to leave the outbox.
func NewTelemetry(cfg TelemetryConfig) *Telemetry {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultOutboxSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Telemetry{
		publisher:   cfg.Publisher,
		broadcaster: cfg.Broadcaster,
		recorder:    cfg.Recorder,
		logger:      logger,
		out:         make(chan outbound, size),
	}
}

// ObserveMiss implements stage.Observer.
func (t *Telemetry) ObserveMiss(m stage.Miss) {
	if t.recorder != nil {
		t.recorder.WriteResolutionMiss(string(m.Kind), m.Name, len(m.Searched), m.At)
	}
	if t.broadcaster != nil {
		t.broadcaster.Broadcast(ChannelMiss, m)
	}
	t.enqueue(t.topics.Miss(), m, false)
}

// NodeUpdated publishes the applied result of an object update.
func (t *Telemetry) NodeUpdated(u NodeUpdate, took time.Duration) {
	if t.recorder != nil {
		t.recorder.WriteStageEvent(influxdb.StageEvent{
			Kind:       mqtt.TimelineObject,
			Name:       u.Name,
			Strategy:   u.Strategy,
			Tier:       string(u.Propagation.Tier),
			Visible:    u.State.Active,
			Reparented: u.Reparented,
			Affected:   u.Propagation.Affected,
			Duration:   took,
		})
	}
	if t.broadcaster != nil {
		t.broadcaster.Broadcast(ChannelNodeUpdated, u)
	}
	t.enqueue(t.topics.NodeState(u.State.Name), u, true)
}

// UnitUpdated publishes the applied result of a transform update.
func (t *Telemetry) UnitUpdated(u UnitUpdate, took time.Duration) {
	if t.recorder != nil {
		t.recorder.WriteStageEvent(influxdb.StageEvent{
			Kind:     mqtt.TimelineTransform,
			Name:     u.Unit,
			Affected: u.Applied,
			Duration: took,
		})
	}
	if t.broadcaster != nil {
		t.broadcaster.Broadcast(ChannelUnitUpdated, u)
	}
	t.enqueue(t.topics.UnitState(u.Unit), u, true)
}

func (t *Telemetry) enqueue(topic string, payload any, retained bool) {
	if t.publisher == nil {
		return
	}
	select {
	case t.out <- outbound{topic: topic, payload: payload, retained: retained}:
	default:
		t.dropped.Add(1)
	}
}

// Run publishes queued messages until ctx is cancelled.
func (t *Telemetry) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-t.out:
			if err := t.publisher.PublishJSON(msg.topic, msg.payload, msg.retained); err != nil {
				t.logger.Debug("stage telemetry publish failed", "topic", msg.topic, "error", err)
				continue
			}
			t.published.Add(1)
		case <-ctx.Done():
			return nil
		}
	}
}

// Published returns the number of MQTT messages sent.
func (t *Telemetry) Published() uint64 { return t.published.Load() }

// Dropped returns the number of MQTT messages discarded on a full outbox.
func (t *Telemetry) Dropped() uint64 { return t.dropped.Load() }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
