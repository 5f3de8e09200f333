// Package tts defines the Provider interface for speech synthesis backends.
//
// Replies are synthesised as whole clips, not streams: the playback
// synchronizer withholds the text reveal until the client reports the clip
// can play, so it needs the complete encoded audio up front to ship to the
// client as one payload. The engine truncates reply text before synthesis to
// bound backend cost; providers receive the already-truncated text.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/talimhq/talim/pkg/types"
)

// Clip is one synthesised speech payload, consumed as an opaque blob.
type Clip struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// MIMEType describes the encoding (e.g., "audio/mpeg").
	MIMEType string
}

// Provider is the abstraction over any clip-based TTS backend.
type Provider interface {
	// Synthesize renders text in the given voice and returns the encoded clip.
	// Returns an error if the voice is unknown or synthesis fails; the caller
	// degrades to text-only presentation on error.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (Clip, error)
}
