package segmenter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when engine operations are called out of order.
	ErrInvalidState = errors.New("invalid engine state")

	// ErrArenaExhausted is returned when a segment arena has no free slot left.
	ErrArenaExhausted = errors.New("segment arena exhausted")

	// ErrMemoryBudget is returned when an allocation would exceed the memory budget.
	ErrMemoryBudget = errors.New("memory budget exceeded")

	// ErrCanceled is returned when a run stops because the caller asked it to.
	ErrCanceled = errors.New("segmentation canceled")

	// ErrInvalidTile is returned for malformed tile descriptors.
	ErrInvalidTile = errors.New("invalid tile")
)

// ConfigError reports a rejected parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

// ResourceError reports an allocation that could not be satisfied.
//
// The underlying sentinel (ErrMemoryBudget or ErrArenaExhausted) can be
// matched with errors.Is.
type ResourceError struct {
	What      string
	Requested int64
	Budget    int64
	cause     error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: requested %d, limit %d: %v", e.What, e.Requested, e.Budget, e.cause)
}

func (e *ResourceError) Unwrap() error { return e.cause }

// NewResourceError reports that what needs requested units against a limit
// of budget.
func NewResourceError(what string, requested, budget int64, err error) *ResourceError {
	return &ResourceError{What: what, Requested: requested, Budget: budget, cause: err}
}

// TileError attaches the failing tile and stage to an error.
type TileError struct {
	Tile  Tile
	Stage Stage
	cause error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %s failed during %s: %v", e.Tile, e.Stage, e.cause)
}

func (e *TileError) Unwrap() error { return e.cause }

// NewTileError wraps err with tile and stage context.
func NewTileError(tile Tile, stage Stage, err error) *TileError {
	return &TileError{Tile: tile, Stage: stage, cause: err}
}
