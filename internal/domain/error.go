package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrNoCredential        = errors.New("no eligible api credential")
	ErrIndexOutOfRange     = errors.New("message index out of range")
	ErrNotAssistantMessage = errors.New("message is not an assistant turn")
	ErrSummaryInFlight     = errors.New("summarization already running for conversation")
	ErrEmptyMessage        = errors.New("message text is empty")
)
