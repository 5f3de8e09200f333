// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// The history store embeds each persisted turn so the results view can search
// a session's transcript semantically as well as by keyword. Embedding is
// strictly best-effort: a failed embed never blocks or fails turn persistence.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions); the history store's vector column
// is sized to it at schema creation.
type Provider interface {
	// Embed computes the embedding vector for one text. Returns a float32
	// slice of length Dimensions() or an error if the request fails or ctx is
	// cancelled. Text is passed through verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the model identifier, for logging and for verifying
	// that an existing vector column matches the configured model.
	ModelID() string
}
