package workflow

import (
	"context"
	"fmt"
	"strings"

	"mediagen/internal/domain"
)

// PromptValidator screens user prompts before any credits move. The content
// policy itself belongs to an external collaborator; this interface is the
// seam it plugs into.
type PromptValidator interface {
	Validate(ctx context.Context, prompt string) error
}

const (
	promptMinLen = 3
	promptMaxLen = 2000
)

// BasicValidator enforces length bounds and a static banned-term screen.
type BasicValidator struct {
	Banned []string
}

// Validate returns ErrInvalidPrompt for prompts that fail the checks.
func (v BasicValidator) Validate(ctx context.Context, prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < promptMinLen {
		return fmt.Errorf("%w: prompt too short", domain.ErrInvalidPrompt)
	}
	if len(trimmed) > promptMaxLen {
		return fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrInvalidPrompt, promptMaxLen)
	}
	lowered := strings.ToLower(trimmed)
	for _, term := range v.Banned {
		if term != "" && strings.Contains(lowered, strings.ToLower(term)) {
			return fmt.Errorf("%w: prompt violates content policy", domain.ErrInvalidPrompt)
		}
	}
	return nil
}

var _ PromptValidator = BasicValidator{}
