package birdid

import "errors"

// Sentinel errors. Wrap them with fmt.Errorf("pkg: ...: %w", Err...).
var (
	// ErrPrecondition means the caller violated an input contract, e.g.
	// audio shorter than one analysis frame or a malformed config.
	// It is never retried.
	ErrPrecondition = errors.New("precondition failed")

	// ErrResourceUnavailable means the model weights or labels are missing
	// or unreadable.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrLoadInProgress is returned to callers that asked not to wait while
	// another goroutine is loading the model.
	ErrLoadInProgress = errors.New("model load in progress")

	// ErrInference means the forward pass failed unexpectedly.
	ErrInference = errors.New("inference failed")
)
