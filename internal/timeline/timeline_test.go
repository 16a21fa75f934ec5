package timeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sample = `
name: live_001
worksheets:
  - name: stage
    objects:
      - name: stage_a
      - name: stand_mic_01
      - name: ""
  - name: props
    objects:
      - name: drum_kit
      - name: stage_a
`

func TestParse_ObjectNames(t *testing.T) {
	d, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := d.ObjectNames()
	want := []string{"stage_a", "stand_mic_01", "drum_kit"}
	if len(got) != len(want) {
		t.Fatalf("ObjectNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ObjectNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParse_JSON(t *testing.T) {
	d, err := Parse([]byte(`{"worksheets":[{"name":"w","objects":[{"name":"x"}]}]}`))
	if err != nil {
		t.Fatalf("Parse(json) error = %v", err)
	}
	if names := d.ObjectNames(); len(names) != 1 || names[0] != "x" {
		t.Errorf("ObjectNames() = %v", names)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte("name: empty\n")); !errors.Is(err, ErrEmptyTimeline) {
		t.Errorf("empty timeline error = %v", err)
	}
	if _, err := Parse([]byte("worksheets: [")); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Name != "live_001" || len(d.Worksheets) != 2 {
		t.Errorf("Load() = %+v", d)
	}
}

func TestObjectNames_Nil(t *testing.T) {
	var d *Data
	if d.ObjectNames() != nil {
		t.Error("nil Data should list no objects")
	}
}
