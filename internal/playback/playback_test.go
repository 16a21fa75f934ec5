package playback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-stage/internal/scene"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

const testManifest = `
stage:
  name: Stage
  children:
    - name: stage_a
      active: false
    - name: truss_l
    - name: truss_r
characters:
  - position: 0
    root:
      name: chara_0
      children:
        - name: Hand_Attach_R
units:
  - name: truss
    members: [truss_l, truss_r]
`

// ─── Fakes ──────────────────────────────────────────────────────

type published struct {
	topic    string
	payload  any
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	seen chan struct{}
	err  error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{seen: make(chan struct{}, 64)}
}

func (p *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, published{topic: topic, payload: v, retained: retained})
	p.mu.Unlock()
	p.seen <- struct{}{}
	return p.err
}

func (p *fakePublisher) waitFor(t *testing.T, n int) []published {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for publish %d of %d", i+1, n)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events map[string][]any
}

func (b *fakeBroadcaster) Broadcast(channel string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string][]any)
	}
	b.events[channel] = append(b.events[channel], payload)
}

func (b *fakeBroadcaster) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[channel])
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []influxdb.StageEvent
	misses []string
}

func (r *fakeRecorder) WriteStageEvent(ev influxdb.StageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *fakeRecorder) WriteResolutionMiss(kind, name string, _ int, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses = append(r.misses, kind+":"+name)
}

type fixture struct {
	scene      *scene.Scene
	engine     *stage.Engine
	telemetry  *Telemetry
	dispatcher *Dispatcher
	pub        *fakePublisher
	hub        *fakeBroadcaster
	rec        *fakeRecorder
}

func newFixture(t *testing.T, queueSize int) *fixture {
	t.Helper()
	m, err := scene.ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	sc := scene.Build(m)

	f := &fixture{
		scene: sc,
		pub:   newFakePublisher(),
		hub:   &fakeBroadcaster{},
		rec:   &fakeRecorder{},
	}
	f.telemetry = NewTelemetry(TelemetryConfig{
		Publisher:   f.pub,
		Broadcaster: f.hub,
		Recorder:    f.rec,
	})

	reg := stage.NewRegistry()
	reg.Populate(sc.Stage)
	f.engine, err = stage.NewEngine(stage.Deps{
		Registry:  reg,
		Rig:       sc.Rig,
		Assets:    sc.Library,
		StageRoot: sc.Stage,
		Observer:  f.telemetry,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	f.engine.LoadUnits(sc.Units)
	f.dispatcher = NewDispatcher(f.engine, f.telemetry, Options{QueueSize: queueSize})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// ─── Dispatcher ─────────────────────────────────────────────────

func TestApplyObjectUpdate(t *testing.T) {
	f := newFixture(t, 8)
	f.start(t)

	res, err := f.dispatcher.ApplyObjectUpdate(context.Background(), stage.ObjectUpdateEvent{
		Name:         "stage_a",
		RenderEnable: true,
	})
	if err != nil {
		t.Fatalf("ApplyObjectUpdate() error = %v", err)
	}
	if res.Node != "stage_a" || !res.State.Active {
		t.Errorf("result = %+v, want stage_a active", res)
	}
	if !f.scene.Stage.Find("stage_a").Active() {
		t.Error("scene node not activated")
	}

	msgs := f.pub.waitFor(t, 1)
	if msgs[0].topic != "graystage/stage/node/stage_a/state" || !msgs[0].retained {
		t.Errorf("published %+v, want retained node state", msgs[0])
	}
	if f.hub.count(ChannelNodeUpdated) != 1 {
		t.Errorf("node.updated broadcasts = %d, want 1", f.hub.count(ChannelNodeUpdated))
	}
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.events) != 1 || f.rec.events[0].Name != "stage_a" || !f.rec.events[0].Visible {
		t.Errorf("recorded events = %+v", f.rec.events)
	}
}

func TestApplyObjectUpdate_Miss(t *testing.T) {
	f := newFixture(t, 8)
	f.start(t)

	_, err := f.dispatcher.ApplyObjectUpdate(context.Background(), stage.ObjectUpdateEvent{Name: "ghost"})
	if !errors.Is(err, stage.ErrObjectNotFound) {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}
	msgs := f.pub.waitFor(t, 1)
	if msgs[0].topic != "graystage/stage/miss" || msgs[0].retained {
		t.Errorf("published %+v, want non-retained miss", msgs[0])
	}
	if f.hub.count(ChannelMiss) != 1 {
		t.Error("miss not broadcast")
	}
	if f.hub.count(ChannelNodeUpdated) != 0 {
		t.Error("failed update must not broadcast node.updated")
	}
	if got := f.dispatcher.Stats().Failed; got != 1 {
		t.Errorf("Stats().Failed = %d, want 1", got)
	}
}

func TestApplyTransformUpdate(t *testing.T) {
	f := newFixture(t, 8)
	f.start(t)

	ev := stage.TransformUpdateEvent{UnitName: "truss"}
	ev.EnablePosition = true
	ev.Position[1] = 4

	n, err := f.dispatcher.ApplyTransformUpdate(context.Background(), ev)
	if err != nil {
		t.Fatalf("ApplyTransformUpdate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("applied = %d, want 2", n)
	}
	if y := f.scene.Stage.Find("truss_r").LocalPosition()[1]; y != 4 {
		t.Errorf("truss_r y = %v, want 4", y)
	}
	msgs := f.pub.waitFor(t, 1)
	if msgs[0].topic != "graystage/stage/unit/truss/state" {
		t.Errorf("topic = %q", msgs[0].topic)
	}

	_, err = f.dispatcher.ApplyTransformUpdate(context.Background(), stage.TransformUpdateEvent{UnitName: "nope"})
	if !errors.Is(err, stage.ErrUnitNotFound) {
		t.Errorf("unknown unit error = %v", err)
	}
}

func TestHandleMessage(t *testing.T) {
	f := newFixture(t, 8)
	f.start(t)

	payload, _ := json.Marshal(map[string]any{"name": "stage_a", "render_enable": true})

	tests := []struct {
		name    string
		topic   string
		payload []byte
		wantErr error
	}{
		{name: "object", topic: "graystage/timeline/object", payload: payload},
		{name: "transform", topic: "graystage/timeline/transform", payload: []byte(`{"unit_name":"truss"}`)},
		{name: "bad json", topic: "graystage/timeline/object", payload: []byte("{"), wantErr: ErrBadPayload},
		{name: "unknown topic", topic: "graystage/timeline/other/x", payload: payload, wantErr: ErrUnknownTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.dispatcher.HandleMessage(tt.topic, tt.payload)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("HandleMessage() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Do runs after the queued events, so the object update is visible.
	var active bool
	err := f.dispatcher.Do(context.Background(), func(e *stage.Engine) error {
		st, err := e.Snapshot("stage_a")
		active = st.Active
		return err
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !active {
		t.Error("queued object update was not applied before Do")
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	f := newFixture(t, 1)

	if _, err := f.dispatcher.SubmitObjectUpdate(stage.ObjectUpdateEvent{Name: "stage_a"}); err != nil {
		t.Fatalf("first submit error = %v", err)
	}
	if _, err := f.dispatcher.SubmitObjectUpdate(stage.ObjectUpdateEvent{Name: "stage_a"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second submit error = %v, want ErrQueueFull", err)
	}
	if got := f.dispatcher.Stats().Pending; got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
}

func TestHandleMessage_WaitsWhenQueueFull(t *testing.T) {
	f := newFixture(t, 1)

	if _, err := f.dispatcher.SubmitObjectUpdate(stage.ObjectUpdateEvent{Name: "stage_a"}); err != nil {
		t.Fatalf("submit error = %v", err)
	}

	payload, _ := json.Marshal(map[string]any{"name": "stage_a", "render_enable": true})
	handled := make(chan error, 1)
	go func() { handled <- f.dispatcher.HandleMessage("graystage/timeline/object", payload) }()

	select {
	case err := <-handled:
		t.Fatalf("HandleMessage() returned %v while the queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	f.start(t)
	select {
	case err := <-handled:
		if err != nil {
			t.Fatalf("HandleMessage() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("HandleMessage() still blocked after the dispatcher started")
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.dispatcher.Stats().Pending > 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue did not drain")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var active bool
	err := f.dispatcher.Do(context.Background(), func(e *stage.Engine) error {
		st, err := e.Snapshot("stage_a")
		active = st.Active
		return err
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !active {
		t.Error("object update delivered on a full queue was lost")
	}
	if got := f.dispatcher.Stats().Processed; got < 2 {
		t.Errorf("Processed = %d, want both updates", got)
	}
}

func TestHandleMessage_AfterStop(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx) }()
	cancel()
	<-done

	err := f.dispatcher.HandleMessage("graystage/timeline/transform", []byte(`{"unit_name":"truss"}`))
	if !errors.Is(err, ErrStopped) {
		t.Errorf("HandleMessage() after stop error = %v, want ErrStopped", err)
	}
}

func TestSubmit_AfterStop(t *testing.T) {
	f := newFixture(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := f.dispatcher.SubmitTransformUpdate(stage.TransformUpdateEvent{UnitName: "truss"}); !errors.Is(err, ErrStopped) {
		t.Errorf("submit after stop error = %v, want ErrStopped", err)
	}
	if err := f.dispatcher.Run(context.Background()); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestDo_RecoversPanic(t *testing.T) {
	f := newFixture(t, 4)
	f.start(t)

	err := f.dispatcher.Do(context.Background(), func(*stage.Engine) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("Do() should return the recovered panic")
	}
	// The loop survives.
	if err := f.dispatcher.Do(context.Background(), func(*stage.Engine) error { return nil }); err != nil {
		t.Errorf("Do() after panic error = %v", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	f := newFixture(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.dispatcher.Do(ctx, func(*stage.Engine) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

// ─── Telemetry ──────────────────────────────────────────────────

func TestTelemetry_DropsWhenOutboxFull(t *testing.T) {
	pub := newFakePublisher()
	tel := NewTelemetry(TelemetryConfig{Publisher: pub, BufferSize: 1})

	tel.UnitUpdated(UnitUpdate{Unit: "a"}, 0)
	tel.UnitUpdated(UnitUpdate{Unit: "b"}, 0)

	if tel.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", tel.Dropped())
	}
}

func TestTelemetry_PublishErrorNotCounted(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("broker down")
	tel := NewTelemetry(TelemetryConfig{Publisher: pub})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = tel.Run(ctx)
		close(done)
	}()

	tel.ObserveMiss(stage.Miss{Kind: stage.MissObject, Name: "x"})
	pub.waitFor(t, 1)
	cancel()
	<-done

	if tel.Published() != 0 {
		t.Errorf("Published() = %d, want 0 after publish error", tel.Published())
	}
}

func TestTelemetry_NilSinks(t *testing.T) {
	tel := NewTelemetry(TelemetryConfig{})
	tel.ObserveMiss(stage.Miss{Kind: stage.MissObject, Name: "x"})
	tel.NodeUpdated(NodeUpdate{Name: "x"}, time.Millisecond)
	tel.UnitUpdated(UnitUpdate{Unit: "u"}, time.Millisecond)
	if tel.Dropped() != 0 {
		t.Error("nil publisher should not count drops")
	}
}

var _ stage.Observer = (*Telemetry)(nil)
