package stage

import "testing"

func TestHasNameToken(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		want   bool
	}{
		{"hand_fan_01", "fan", true},
		{"Fan", "fan", true},
		{"fan(Clone)", "fan", true},
		{"Hand Fan", "FAN", true},
		{"fanfare_banner", "fan", false},
		{"infantry_flag", "fan", false},
		{"chara_hand_fan", "hand_fan", true},
		{"hand_fanfare", "hand_fan", false},
		{"fan_hand", "hand_fan", false},
		{"hand_fan_01", "", false},
		{"", "fan", false},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.marker, func(t *testing.T) {
			if got := hasNameToken(tc.name, tc.marker); got != tc.want {
				t.Errorf("hasNameToken(%q, %q) = %v, want %v", tc.name, tc.marker, got, tc.want)
			}
		})
	}
}
