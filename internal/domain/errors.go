package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidPrompt       = errors.New("invalid prompt")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProviderFailure     = errors.New("provider failure")
	ErrStorageFailure      = errors.New("storage failure")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrJobTerminal         = errors.New("job already terminal")
	ErrJobNotPausable      = errors.New("job not pausable")
	ErrJobNotPaused        = errors.New("job not paused")

	// ErrConflict means a conditional update lost the race to another writer.
	// It is benign: the other writer's transition wins and the caller discards
	// its own.
	ErrConflict = errors.New("concurrent update conflict")
)
