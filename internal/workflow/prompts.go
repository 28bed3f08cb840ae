package workflow

import "strings"

// DeriveImagePrompt builds the image-stage prompt from the user's original
// prompt plus presentation hints.
func DeriveImagePrompt(prompt, style, quality string) string {
	parts := []string{strings.TrimSpace(prompt)}
	if s := strings.TrimSpace(style); s != "" {
		parts = append(parts, s+" style")
	}
	if q := strings.TrimSpace(quality); q != "" {
		parts = append(parts, q+" quality")
	}
	return strings.Join(parts, ", ")
}

// DeriveVideoPrompt builds the video-stage prompt. The base image carries the
// visual content; the prompt directs the motion.
func DeriveVideoPrompt(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "animate the scene with subtle natural motion"
	}
	return "animate: " + trimmed + ", smooth camera movement, natural motion"
}
