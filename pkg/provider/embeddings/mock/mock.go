// Package mock provides a deterministic embeddings.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/talimhq/talim/pkg/provider/embeddings"
)

// Provider implements embeddings.Provider with a fixed-dimension vector whose
// first component encodes the input length, making results deterministic and
// distinguishable without a real model.
type Provider struct {
	// Dims is the vector dimensionality. Defaults to 4 when zero.
	Dims int

	// Err, when non-nil, is returned by Embed.
	Err error

	mu    sync.Mutex
	calls []string
}

var _ embeddings.Provider = (*Provider)(nil)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls = append(p.calls, text)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	vec := make([]float32, p.Dimensions())
	vec[0] = float32(len(text))
	return vec, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims <= 0 {
		return 4
	}
	return p.Dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embed" }

// Calls returns the texts passed to Embed so far.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}
