// Package stt defines the Provider interface for streaming speech-to-text
// backends.
//
// The capture controller needs two result streams with different contracts:
// low-latency interim hypotheses (each one wholly replacing the previous) and
// committed finals (append-only for the turn). SessionHandle exposes exactly
// those two streams. Recognizer shutdown is asynchronous: after Close, the
// result channels stay open until the provider has flushed its last results
// and only then are closed — that closure is the recognizer's "ended" signal
// consumers must wait for.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/talimhq/talim/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after the session has been closed.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// recognition session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 for recognizer input).
	SampleRate int

	// Channels is the number of audio channels; 1 for microphone capture.
	Channels int

	// Language is the BCP-47 recognition language (e.g., "tr"). Empty lets
	// the provider auto-detect, where supported.
	Language string

	// Keywords boosts simulation vocabulary the recognizer tends to
	// mis-tokenize. Applied for the lifetime of the session.
	Keywords []types.KeywordBoost
}

// SessionHandle is an open streaming recognition session.
//
// Callers must call Close when done; failing to do so leaks goroutines and
// connections inside the provider. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio for transcription. The chunk
	// must match the format agreed in StreamConfig. Returns ErrSessionClosed
	// after Close.
	SendAudio(chunk []byte) error

	// Interims returns a read-only channel of volatile interim hypotheses.
	// Each value replaces the previous one; interim text is never accumulated.
	// Closed when the session ends.
	Interims() <-chan types.Transcript

	// Finals returns a read-only channel of committed recognition results.
	// These are the fragments appended to the turn's transcript buffer.
	// Closed when the session ends — channel closure is the authoritative
	// "recognizer ended" signal.
	Finals() <-chan types.Transcript

	// Close stops recognition, flushes pending audio, and releases resources.
	// The Interims and Finals channels close once the provider has drained.
	// Safe to call multiple times.
	Close() error
}

// Provider is the abstraction over any streaming STT backend. Multiple
// sessions may be open simultaneously (one per active trainee).
type Provider interface {
	// StartStream opens a new recognition session. The returned handle is
	// ready to accept audio immediately. The caller owns the handle and must
	// call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
