// Package mock provides a scripted stt.Provider for tests. The test pushes
// transcripts into the session's channels and closes it to simulate the
// recognizer's asynchronous end signal.
package mock

import (
	"context"
	"sync"

	"github.com/talimhq/talim/pkg/provider/stt"
	"github.com/talimhq/talim/pkg/types"
)

// Provider implements stt.Provider. Configure StartErr to make StartStream
// fail; otherwise every call records the config and returns a fresh Session.
type Provider struct {
	// StartErr, when non-nil, is returned by StartStream.
	StartErr error

	mu       sync.Mutex
	calls    []stt.StreamConfig
	sessions []*Session
}

var _ stt.Provider = (*Provider)(nil)

// StartStream implements stt.Provider.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	p.calls = append(p.calls, cfg)
	s := NewSession()
	p.sessions = append(p.sessions, s)
	return s, nil
}

// StartCalls returns a copy of the configs passed to StartStream.
func (p *Provider) StartCalls() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.StreamConfig, len(p.calls))
	copy(out, p.calls)
	return out
}

// Sessions returns the sessions created so far, in creation order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session is a scripted stt.SessionHandle.
type Session struct {
	interims chan types.Transcript
	finals   chan types.Transcript

	mu     sync.Mutex
	audio  [][]byte
	closed bool
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession creates an open scripted session.
func NewSession() *Session {
	return &Session{
		interims: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
	}
}

// SendAudio records the chunk. Returns stt.ErrSessionClosed after Close.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audio = append(s.audio, cp)
	return nil
}

// Interims implements stt.SessionHandle.
func (s *Session) Interims() <-chan types.Transcript { return s.interims }

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Close marks the session closed and closes both result channels, which is
// the recognizer-ended signal consumers wait for.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.interims)
	close(s.finals)
	return nil
}

// EmitInterim pushes an interim hypothesis to the session's consumers.
func (s *Session) EmitInterim(text string) {
	s.interims <- types.Transcript{Text: text}
}

// EmitFinal pushes a committed result to the session's consumers.
func (s *Session) EmitFinal(text string) {
	s.finals <- types.Transcript{Text: text, IsFinal: true}
}

// AudioChunks returns the audio chunks recorded so far.
func (s *Session) AudioChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}
