package id

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const defaultLength = 10

// Alphabet is the URL-safe character set identifiers are drawn from.
const Alphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator produces short, URL-safe identifiers. Collisions are left to
// probability; nothing here consults the store.
type Generator struct {
	length int
}

// New returns a Generator with the provided length. If length <= 0, a sane default is used.
func New(length int) *Generator {
	if length <= 0 {
		length = defaultLength
	}
	return &Generator{length: length}
}

// Generate returns a new identifier.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return gonanoid.Generate(Alphabet, g.length)
}

// Length reports the identifier length the generator produces.
func (g *Generator) Length() int {
	return g.length
}
