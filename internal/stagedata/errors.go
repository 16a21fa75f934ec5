package stagedata

import "errors"

var (
	// ErrShowIDRequired is returned when a repository is created without a show.
	ErrShowIDRequired = errors.New("stagedata: show id is required")

	// ErrDuplicateUnit is returned when a unit name appears twice in one import.
	ErrDuplicateUnit = errors.New("stagedata: duplicate unit name")

	// ErrInvalidRetention is returned when pruning with a non-positive age.
	ErrInvalidRetention = errors.New("stagedata: retention must be positive")
)
