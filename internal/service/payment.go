package service

import (
	"math/rand/v2"
	"sync"
)

// DefaultPaymentSuccessRate is the probability that a simulated charge succeeds.
const DefaultPaymentSuccessRate = 0.8

// Chance draws independent trials. Each call returns true with the configured probability.
type Chance interface {
	Succeed() bool
}

// ChanceFunc adapts a function to the Chance interface.
type ChanceFunc func() bool

func (f ChanceFunc) Succeed() bool { return f() }

// Always returns a Chance with a fixed outcome.
func Always(outcome bool) Chance {
	return ChanceFunc(func() bool { return outcome })
}

// randomChance succeeds when a uniform draw in [0,1) falls below rate.
type randomChance struct {
	rate  float64
	float func() float64
}

// NewRandomChance returns a Chance that succeeds with probability rate.
// A nil source uses the global generator.
func NewRandomChance(rate float64, src *rand.Rand) Chance {
	rate = min(max(rate, 0), 1)
	c := &randomChance{rate: rate, float: rand.Float64}
	if src != nil {
		// *rand.Rand is not safe for concurrent use.
		var mu sync.Mutex
		c.float = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return src.Float64()
		}
	}
	return c
}

func (c *randomChance) Succeed() bool {
	return c.float() < c.rate
}
