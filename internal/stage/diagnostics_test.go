package stage

import (
	"fmt"
	"testing"
)

func TestMissLog_Ring(t *testing.T) {
	log := NewMissLog(3)
	for i := 0; i < 5; i++ {
		log.ObserveMiss(Miss{Kind: MissObject, Name: fmt.Sprintf("m%d", i)})
	}

	if log.Total() != 5 {
		t.Errorf("Total() = %d, want 5", log.Total())
	}
	recent := log.Recent(0)
	want := []string{"m4", "m3", "m2"}
	if len(recent) != len(want) {
		t.Fatalf("Recent(0) = %d entries, want %d", len(recent), len(want))
	}
	for i, w := range want {
		if recent[i].Name != w {
			t.Errorf("recent[%d] = %q, want %q", i, recent[i].Name, w)
		}
	}

	if got := log.Recent(1); len(got) != 1 || got[0].Name != "m4" {
		t.Errorf("Recent(1) = %+v", got)
	}
}

func TestMissLog_PartiallyFilled(t *testing.T) {
	log := NewMissLog(0)
	log.ObserveMiss(Miss{Name: "only"})

	got := log.Recent(10)
	if len(got) != 1 || got[0].Name != "only" {
		t.Errorf("Recent(10) = %+v", got)
	}
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &missRecorder{}, &missRecorder{}
	var calls int
	obs := Observers{a, nil, b, ObserverFunc(func(Miss) { calls++ })}

	obs.ObserveMiss(Miss{Kind: MissAsset})
	if len(a.misses) != 1 || len(b.misses) != 1 || calls != 1 {
		t.Errorf("fan out: a=%d b=%d func=%d", len(a.misses), len(b.misses), calls)
	}
}

func TestReporter_StampsTime(t *testing.T) {
	rec := &missRecorder{}
	r := newReporter(nil, rec)
	r.miss(MissJoint, "mic", "detail", "J1", "J2")

	if len(rec.misses) != 1 {
		t.Fatalf("misses = %d", len(rec.misses))
	}
	m := rec.misses[0]
	if m.At.IsZero() || m.At.Location().String() != "UTC" {
		t.Errorf("At = %v, want UTC timestamp", m.At)
	}
	if len(m.Searched) != 2 {
		t.Errorf("Searched = %v", m.Searched)
	}
}
