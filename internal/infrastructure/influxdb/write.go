package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementStageEvents = "stage_events"
	MeasurementStageMisses = "stage_misses"
)

// StageEvent is one applied timeline event.
type StageEvent struct {
	// Kind is "object" or "transform".
	Kind string
	// Name is the object or unit name from the event.
	Name string
	// Strategy is the resolver strategy that matched; empty for transforms.
	Strategy string
	// Tier is the propagation tier that fired; empty when nothing propagated.
	Tier string

	Visible    bool
	Reparented bool
	Affected   int
	Duration   time.Duration
}

// WriteStageEvent records an applied event.
//
// Names are tags: a show has a bounded set of timeline objects.
func (c *Client) WriteStageEvent(ev StageEvent) {
	if !c.IsConnected() {
		return
	}

	tags := c.baseTags()
	tags["kind"] = ev.Kind
	tags["name"] = ev.Name
	if ev.Strategy != "" {
		tags["strategy"] = ev.Strategy
	}
	if ev.Tier != "" {
		tags["tier"] = ev.Tier
	}

	c.writer.WritePoint(write.NewPoint(
		MeasurementStageEvents,
		tags,
		map[string]interface{}{
			"visible":     ev.Visible,
			"reparented":  ev.Reparented,
			"affected":    ev.Affected,
			"duration_us": ev.Duration.Microseconds(),
		},
		c.now(),
	))
}

// WriteResolutionMiss records a name the engine could not resolve.
func (c *Client) WriteResolutionMiss(kind, name string, searched int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = c.now()
	}

	tags := c.baseTags()
	tags["kind"] = kind
	tags["name"] = name

	c.writer.WritePoint(write.NewPoint(
		MeasurementStageMisses,
		tags,
		map[string]interface{}{
			"count":    1,
			"searched": searched,
		},
		at,
	))
}

// WritePoint writes a custom point stamped now, with the show tag added.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	merged := c.baseTags()
	for k, v := range tags {
		merged[k] = v
	}
	c.writer.WritePoint(write.NewPoint(measurement, merged, fields, c.now()))
}

func (c *Client) baseTags() map[string]string {
	out := make(map[string]string, len(c.tags)+4)
	for k, v := range c.tags {
		out[k] = v
	}
	return out
}
