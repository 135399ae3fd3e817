package sampler

import (
	"fmt"
	"time"
)

// lcg advances the linear congruential generator driving the shuffle.
// The constants match the classic 9301/49297/233280 generator, so a given
// seed reproduces the same sequence in any process.
func lcg(seed int64) int64 {
	return (seed*9301 + 49297) % 233280
}

// hashSeed folds a seed string into the generator's starting state.
func hashSeed(seed string) int64 {
	var h int64
	for _, r := range seed {
		h = (h*31 + int64(r)) % 233280
	}
	return h
}

// Shuffle returns a reproducible permutation of items: the same seed and
// input order always yield the same output order. The input slice is not
// modified.
func Shuffle[T any](items []T, seed string) []T {
	out := make([]T, len(items))
	copy(out, items)

	s := hashSeed(seed)
	for i := len(out) - 1; i > 0; i-- {
		s = lcg(s)
		j := int(s % int64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Sample returns the first n items of the seeded shuffle.
func Sample[T any](items []T, seed string, n int) []T {
	shuffled := Shuffle(items, seed)
	if n < 0 || n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// MonthlySeed derives the default seed for a curated selection: the
// selection rotates when the month changes, and only then.
func MonthlySeed(t time.Time, key string) string {
	return fmt.Sprintf("%s-%s", t.Format("2006-01"), key)
}
