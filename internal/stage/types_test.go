package stage

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPropGroupSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    PropGroupSpec
		wantErr bool
	}{
		{"valid character prop", PropGroupSpec{PropsName: "mic", IsCharacterProp: true, AttachJoints: []string{"J"}}, false},
		{"valid stage prop", PropGroupSpec{PropsName: "drum_kit"}, false},
		{"empty name", PropGroupSpec{PropsName: "  ", AttachJoints: []string{"J"}}, true},
		{"negative id", PropGroupSpec{PropsName: "x", MajorID: -1}, true},
		{"character prop without joints", PropGroupSpec{PropsName: "x", IsCharacterProp: true}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedSpec) {
				t.Errorf("error %v does not wrap ErrMalformedSpec", err)
			}
		})
	}
}

func TestPropGroupSpec_TargetPositions(t *testing.T) {
	spec := PropGroupSpec{Conditions: []Condition{
		{Type: ConditionCharaPosition, Value: 2},
		{Type: "Costume", Value: 5},
		{Type: ConditionCharaPosition, Value: 0},
		{Type: ConditionCharaPosition, Value: 2},
	}}
	got := spec.TargetPositions()
	if len(got) != 2 || got[0] != 2 || got[1] != 0 {
		t.Errorf("TargetPositions() = %v, want [2 0]", got)
	}
	if got := (PropGroupSpec{}).TargetPositions(); len(got) != 0 {
		t.Errorf("no conditions = %v, want empty", got)
	}
}

func TestPropAssetKey(t *testing.T) {
	chara := PropAssetKey(PropGroupSpec{PropsName: "mic", IsCharacterProp: true, MajorID: 1024, MinorID: 1})
	if got, want := chara.String(), "prop/chara/1024_01/pf_prp_1024_01"; got != want {
		t.Errorf("character key = %q, want %q", got, want)
	}
	stage := PropAssetKey(PropGroupSpec{PropsName: "riser", MajorID: 7})
	if got, want := stage.String(), "prop/stage/0007_00/pf_prp_0007_00"; got != want {
		t.Errorf("stage key = %q, want %q", got, want)
	}
}

func TestObjectUpdateEvent_JSON(t *testing.T) {
	payload := `{
		"name": "stand_mic_01",
		"render_enable": true,
		"attach_target": "character",
		"character_position": 2,
		"enable_position": true,
		"position": [1, 2, 3]
	}`
	var ev ObjectUpdateEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ev.Name != "stand_mic_01" || !ev.RenderEnable || ev.AttachTarget != AttachCharacter || ev.CharacterPosition != 2 {
		t.Errorf("decoded = %+v", ev)
	}
	if !ev.EnablePosition || ev.Position.Z() != 3 || ev.EnableScale {
		t.Errorf("channels = %+v", ev.Channels)
	}
}

func TestParseAttachTarget(t *testing.T) {
	tests := map[string]AttachTarget{
		"none":      AttachNone,
		"Character": AttachCharacter,
		"chara":     AttachCharacter,
		" camera ":  AttachCamera,
		"bogus":     AttachNone,
	}
	for in, want := range tests {
		if got := ParseAttachTarget(in); got != want {
			t.Errorf("ParseAttachTarget(%q) = %v, want %v", in, got, want)
		}
	}
}
