package playback

import "errors"

var (
	// ErrQueueFull is returned when an event cannot be queued. Events carry
	// absolute state, so the next frame repairs a dropped one.
	ErrQueueFull = errors.New("playback: event queue full")

	// ErrStopped is returned when the dispatcher is not running.
	ErrStopped = errors.New("playback: dispatcher stopped")

	// ErrUnknownTopic is returned for messages outside the timeline topics.
	ErrUnknownTopic = errors.New("playback: unknown timeline topic")

	// ErrBadPayload is returned when an event payload cannot be decoded.
	ErrBadPayload = errors.New("playback: invalid event payload")
)
