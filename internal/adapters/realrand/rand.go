// Package realrand provides a crypto/rand implementation of ports.Random.
package realrand

import (
	"crypto/rand"

	"github.com/acolita/shelltabs/internal/ports"
)

// Random implements ports.Random using crypto/rand.
type Random struct{}

// New returns a new real Random.
func New() *Random {
	return &Random{}
}

func (r *Random) Read(b []byte) (int, error) {
	return rand.Read(b)
}

var _ ports.Random = (*Random)(nil)
