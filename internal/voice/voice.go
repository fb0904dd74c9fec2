// Package voice declares the pluggable voice-masking collaborator (spec.md §9): pitch/formant transformation of a
// sender's voice message before fan-out, so a recipient cannot recognize the sender by voice alone. The DSP
// implementation itself is out of scope for the core (spec.md §1 "out of scope: voice-pitch transformation").
package voice

import "context"

// Masker transforms a raw ogg voice payload into a masked one, returning the new payload and its duration.
type Masker interface {
	MaskVoice(ctx context.Context, oggBytes []byte) (masked []byte, durationSeconds int, err error)
}

// Noop is a Masker that returns its input unchanged, for deployments without a DSP backend wired in.
type Noop struct{}

// MaskVoice returns oggBytes unchanged with a zero duration.
func (Noop) MaskVoice(_ context.Context, oggBytes []byte) ([]byte, int, error) {
	return oggBytes, 0, nil
}
