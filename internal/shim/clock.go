package shim

import (
	"math/rand/v2"
	"time"
)

// DefaultEpoch is the instant Date.now() reports inside the sandbox.
var DefaultEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fixed PCG seeds for Math.random.
const (
	randSeed1 = 0x5f3759df
	randSeed2 = 0x9e3779b97f4a7c15
)

// WithEpoch pins the sandbox clock to t instead of DefaultEpoch.
func WithEpoch(t time.Time) Option {
	return func(e *Environment) {
		if !t.IsZero() {
			e.epoch = t
		}
	}
}

// frozenClock returns a time source that always reports epoch, so Date.now(),
// new Date() and performance.now() are identical on every run.
func frozenClock(epoch time.Time) func() time.Time {
	return func() time.Time { return epoch }
}

// seededRandom returns a Math.random source that replays the same sequence
// for every environment.
func seededRandom() func() float64 {
	r := rand.New(rand.NewPCG(randSeed1, randSeed2))
	return r.Float64
}
