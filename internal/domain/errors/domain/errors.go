// Package domain provides domain-specific error definitions and utilities.
package domain

import "errors"

// Bill-related errors.
var (
	ErrBillNotFound      = errors.New("bill not found")
	ErrBillAlreadyExists = errors.New("bill already exists")
	ErrEmptyBillBody     = errors.New("bill has no text body")
)

// Batch lifecycle errors.
var (
	ErrEmptyBatch       = errors.New("no bills to submit")
	ErrBatchJobNotFound = errors.New("batch job not found")
	ErrBatchNotEnded    = errors.New("batch has not reached a terminal state")
	ErrRetryExhausted   = errors.New("retry attempts exhausted")
)

// Messaging errors.
var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnknownAction  = errors.New("unknown message action")
)

// General domain errors.
var (
	ErrInvalidInput = errors.New("invalid input")
)
