package workflow

import (
	"fmt"

	"mediagen/internal/domain"
)

// Pricing is the cost table keyed by job kind, in minor currency units. It is
// captured onto the job at creation time and immutable afterward.
type Pricing struct {
	Image          int
	ImageThenVideo int
}

// DefaultPricing matches the plan defaults.
func DefaultPricing() Pricing {
	return Pricing{Image: 5, ImageThenVideo: 25}
}

// For returns the reserved cost for a job kind.
func (p Pricing) For(kind domain.JobKind) (int, error) {
	switch kind {
	case domain.JobKindImage:
		return p.Image, nil
	case domain.JobKindImageThenVideo:
		return p.ImageThenVideo, nil
	default:
		return 0, fmt.Errorf("pricing: unknown job kind %q", kind)
	}
}
