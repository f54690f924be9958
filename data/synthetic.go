package data

import (
	"math/rand"
	"strings"

	rng "github.com/leesper/go_rng"
)

// Synthetic fabricates a corpus of random words with Gaussian random-walk
// trajectories. Handy for smoke runs and tests when no real corpus is
// around. The result is deterministic for a given seed.
func Synthetic(n int, alpha *Alphabet, seed int64) Dataset {
	gauss := rng.NewGaussianGenerator(seed)
	r := rand.New(rand.NewSource(seed))

	ds := make(Dataset, 0, n)
	for i := 0; i < n; i++ {
		words := make([]string, 1+r.Intn(3))
		for w := range words {
			words[w] = alpha.randomWord(r, 2+r.Intn(6))
		}

		points := make([][3]float32, 20+r.Intn(30))
		for t := range points {
			var pen float32
			if t == 0 || r.Float64() < 0.05 {
				pen = 1
			}
			points[t] = [3]float32{
				pen,
				float32(gauss.Gaussian(0, 1)),
				float32(gauss.Gaussian(0, 1)),
			}
		}
		ds = append(ds, Sample{Text: strings.Join(words, " "), Points: points})
	}
	return ds
}

// randomWord draws length runes from the alphabet, skipping the unknown
// class.
func (a *Alphabet) randomWord(r *rand.Rand, length int) string {
	rs := make([]rune, length)
	for i := range rs {
		rs[i] = a.runes[1+r.Intn(len(a.runes)-1)]
	}
	return string(rs)
}
