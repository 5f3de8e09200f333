// Package mock provides a recording tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/talimhq/talim/pkg/provider/tts"
	"github.com/talimhq/talim/pkg/types"
)

// Call records one Synthesize invocation.
type Call struct {
	Text  string
	Voice types.VoiceProfile
}

// Provider implements tts.Provider with a scripted clip and error.
type Provider struct {
	// Clip is returned by every successful Synthesize call.
	Clip tts.Clip

	// Err, when non-nil, is returned by Synthesize instead of Clip.
	Err error

	// Delay blocks Synthesize until the channel is closed, when non-nil.
	// Lets tests hold a synthesis request in flight.
	Delay chan struct{}

	mu    sync.Mutex
	calls []Call
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Clip, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Text: text, Voice: voice})
	delay := p.Delay
	p.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return tts.Clip{}, ctx.Err()
		}
	}

	if p.Err != nil {
		return tts.Clip{}, p.Err
	}
	return p.Clip, nil
}

// Calls returns a copy of all recorded Synthesize calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}
