package provider

import "math/rand/v2"

// Picker chooses an index in [0, n). Inject a seeded or fixed Picker to make
// the canned pools deterministic.
type Picker interface {
	IntN(n int) int
}

type globalPicker struct{}

func (globalPicker) IntN(n int) int { return rand.IntN(n) }

// RandomPicker uses the global math/rand/v2 source.
func RandomPicker() Picker { return globalPicker{} }

// SeededPicker returns a reproducible Picker.
func SeededPicker(seed uint64) Picker {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// FixedPicker always returns the same index, clamped to the pool.
type FixedPicker int

func (f FixedPicker) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}
	if f < 0 {
		return 0
	}
	return int(f)
}

func pick(p Picker, pool []string) string {
	return pool[p.IntN(len(pool))]
}
