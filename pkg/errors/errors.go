package errors

import "errors"

// Sentinels for domain errors.
var (
	ErrValidation = errors.New("validation error")
	ErrCreation   = errors.New("call creation failed")
	ErrPrompt     = errors.New("play prompt failed")
	ErrCredential = errors.New("credential exchange failed")
)
