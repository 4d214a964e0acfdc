package random

import "math/rand/v2"

// Random is the source of chance behind the local platform's simulated
// outages. Tests swap in mocks.MockRandom to script them.
type Random interface {
	// Intn returns an int in [0, n), or 0 when n <= 0
	Intn(n int) int
}

// Source draws from the runtime's shared generator
type Source struct{}

// New returns the default Random
func New() Source {
	return Source{}
}

func (Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n)
}
