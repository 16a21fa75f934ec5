package stage

import (
	"testing"
)

func TestPropIndex_TwoKeys(t *testing.T) {
	p := NewPropIndex()
	mic := newNode("hand_mic", nil)
	stand := newNode("stand", nil)

	p.Add("003", 0, stand)
	p.Add("mic", HandMicMajorID, mic)

	if got := p.ByName("mic"); len(got) != 1 || got[0] != Node(mic) {
		t.Errorf("ByName(mic) = %v", got)
	}
	if got := p.ByMajor(HandMicMajorID); len(got) != 1 || got[0] != Node(mic) {
		t.Errorf("ByMajor(1024) = %v", got)
	}
	if got := p.ByMajor(0); got != nil {
		t.Errorf("ByMajor(0) = %v, want nil (0 is not indexed)", got)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestPropIndex_ReadOnlyViews(t *testing.T) {
	p := NewPropIndex()
	a := newNode("a", nil)
	p.Add("bucket", 7, a)

	view := p.ByName("bucket")
	view[0] = newNode("intruder", nil)

	if got := p.ByName("bucket"); got[0] != Node(a) {
		t.Error("mutating a returned slice changed the index")
	}
}

func TestPropIndex_SetVisible(t *testing.T) {
	p := NewPropIndex()
	l := newNode("stick_l", nil)
	r := newNode("stick_r", nil)
	p.Add(DrumstickPropsName, DrumstickLeftMajorID, l)
	p.Add(DrumstickPropsName, DrumstickRightMajorID, r)

	if n := p.SetVisibleByName(DrumstickPropsName, false); n != 2 {
		t.Errorf("SetVisibleByName touched %d, want 2", n)
	}
	if l.active || r.active {
		t.Error("drumsticks still active")
	}
	if n := p.SetVisibleByMajor(DrumstickRightMajorID, true); n != 1 {
		t.Errorf("SetVisibleByMajor touched %d, want 1", n)
	}
	if l.active || !r.active {
		t.Errorf("after major toggle: left=%v right=%v", l.active, r.active)
	}
	if n := p.SetVisibleByName("missing", true); n != 0 {
		t.Errorf("SetVisibleByName(missing) = %d", n)
	}
}

func TestPropIndex_Teardown(t *testing.T) {
	p := NewPropIndex()
	bone := newNode("bone", nil)
	a := newNode("a", bone)
	p.Add("x", 1, a)

	if n := p.Teardown(); n != 1 {
		t.Errorf("Teardown() = %d, want 1", n)
	}
	if !a.destroyed {
		t.Error("owned instance not destroyed")
	}
	if len(bone.children) != 0 {
		t.Error("destroyed instance still parented")
	}
	if p.HasName("x") || p.ByMajor(1) != nil || p.Len() != 0 {
		t.Error("index not cleared by Teardown")
	}
}

func TestPropIndex_Enumerations(t *testing.T) {
	p := NewPropIndex()
	p.Add("b", 20, newNode("1", nil))
	p.Add("a", 10, newNode("2", nil))

	names := p.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v", names)
	}
	ids := p.MajorIDs()
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Errorf("MajorIDs() = %v", ids)
	}
}
