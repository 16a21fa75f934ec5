package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the stage service.
const (
	TopicPrefix         = "graystage"
	TopicPrefixTimeline = TopicPrefix + "/timeline"
	TopicPrefixStage    = TopicPrefix + "/stage"
	TopicPrefixSystem   = TopicPrefix + "/system"
)

// Timeline event kinds, the last segment of a timeline topic.
const (
	TimelineObject    = "object"
	TimelineTransform = "transform"
)

// Topics provides builders for stage MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.NodeState("stand_mic_01") // graystage/stage/node/stand_mic_01/state
type Topics struct{}

// TimelineObject is where the show clock publishes object update events.
//
// Example: graystage/timeline/object
func (Topics) TimelineObject() string {
	return TopicPrefixTimeline + "/" + TimelineObject
}

// TimelineTransform is where the show clock publishes unit transform events.
//
// Example: graystage/timeline/transform
func (Topics) TimelineTransform() string {
	return TopicPrefixTimeline + "/" + TimelineTransform
}

// AllTimeline matches every timeline event topic.
//
// Pattern: graystage/timeline/+
func (Topics) AllTimeline() string {
	return TopicPrefixTimeline + "/+"
}

// NodeState is the retained state topic of a resolved node.
//
// Example: graystage/stage/node/stand_mic_01/state
func (Topics) NodeState(name string) string {
	return fmt.Sprintf("%s/node/%s/state", TopicPrefixStage, Segment(name))
}

// UnitState is the retained state topic of a transform unit.
//
// Example: graystage/stage/unit/truss_a/state
func (Topics) UnitState(name string) string {
	return fmt.Sprintf("%s/unit/%s/state", TopicPrefixStage, Segment(name))
}

// Miss is where resolution misses are announced for show control.
//
// Example: graystage/stage/miss
func (Topics) Miss() string {
	return TopicPrefixStage + "/miss"
}

// SystemStatus is the retained online/offline topic.
//
// Example: graystage/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// TimelineKind returns the event kind of a timeline topic, or "" when the
// topic is not under graystage/timeline.
func TimelineKind(topic string) string {
	rest, ok := strings.CutPrefix(topic, TopicPrefixTimeline+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

// segmentReplacer strips characters with meaning in MQTT topics.
var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Segment makes a scene node name safe for use as one topic level.
func Segment(name string) string {
	s := segmentReplacer.Replace(strings.TrimSpace(name))
	if s == "" {
		return "_"
	}
	return s
}
