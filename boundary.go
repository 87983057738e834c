package formdata

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// defaultBoundaryLength is the number of characters produced by the default
// boundary generator.
const defaultBoundaryLength = 6

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// BoundaryGenerator is a policy producing the string used to delimit the parts
// of a form. Generation cannot fail.
//
// The generated boundary must not appear inside any part payload. This is
// never checked; use a longer boundary such as [UUIDBoundary] when payloads
// are untrusted.
type BoundaryGenerator interface {
	GenerateBoundary() string
}

// BoundaryFunc adapts an ordinary function to a [BoundaryGenerator].
type BoundaryFunc func() string

// GenerateBoundary calls f.
func (f BoundaryFunc) GenerateBoundary() string {
	return f()
}

// FixedBoundary returns a [BoundaryGenerator] that always produces boundary.
func FixedBoundary(boundary string) BoundaryGenerator {
	return BoundaryFunc(func() string { return boundary })
}

// RandomAlphanumeric generates boundaries drawn uniformly from [A-Za-z0-9].
// The zero value produces six characters, which is the default policy of
// [NewForm].
type RandomAlphanumeric struct {
	Length int
}

// GenerateBoundary returns a new random boundary.
func (g RandomAlphanumeric) GenerateBoundary() string {
	n := g.Length
	if n <= 0 {
		n = defaultBoundaryLength
	}

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphanumeric[rand.IntN(len(alphanumeric))])
	}
	return b.String()
}

// UUIDBoundary generates boundaries from a random UUID with the dashes
// removed, giving 32 hexadecimal characters.
type UUIDBoundary struct{}

// GenerateBoundary returns a new random boundary.
func (UUIDBoundary) GenerateBoundary() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
