package domain

import "errors"

// Common domain errors used across the engine.
var (
	// ErrEmptyLessonID is returned when a progress record has no lesson ID.
	ErrEmptyLessonID = errors.New("lesson ID cannot be empty")

	// ErrMetadataTooLarge is returned when a record's metadata document
	// exceeds MaxMetadataBytes once serialized.
	ErrMetadataTooLarge = errors.New("metadata exceeds size bound")

	// ErrInvalidStatus is returned when a sync status value is not one of
	// the defined constants.
	ErrInvalidStatus = errors.New("invalid sync status")
)
