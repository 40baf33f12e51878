package models

import "errors"

// Validation errors, returned before anything is stored
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrInvalidSigner    = errors.New("invalid signer")
)

// State errors
var (
	ErrNotFound          = errors.New("intent not found")
	ErrAlreadyTerminal   = errors.New("intent already terminal")
	ErrAlreadyInProgress = errors.New("intent execution already in progress")
	ErrQuorumNotMet      = errors.New("quorum not met")
)

// Gateway errors
var (
	ErrNotImplemented     = errors.New("not implemented")
	ErrGatewayUnavailable = errors.New("execution gateway unavailable")
)
