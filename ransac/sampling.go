package ransac

import "math/rand"

// Sampler draws minimal samples for the estimator.
type Sampler interface {
	// Sample fills sample with len(sample) distinct indices in [0, NumData).
	Sample(sample []int)
}

// UniformSampler draws indices uniformly without replacement from one
// long-lived random stream, so consecutive samples of a run differ while the
// whole sequence is fixed by the seed.
type UniformSampler struct {
	rng     *rand.Rand
	numData int
}

// NewUniformSampler creates a sampler over [0, numData). It panics if
// numData <= 0, mirroring rand.Intn.
func NewUniformSampler(seed uint32, numData int) *UniformSampler {
	if numData <= 0 {
		panic("ransac: NewUniformSampler with numData <= 0")
	}
	return &UniformSampler{
		rng:     rand.New(rand.NewSource(int64(seed))),
		numData: numData,
	}
}

// Sample draws each position independently and rejects repeats. Minimal
// samples are tiny compared to the data, so rejection rarely triggers.
// Asking for more indices than exist panics.
func (s *UniformSampler) Sample(sample []int) {
	if len(sample) > s.numData {
		panic("ransac: sample larger than data")
	}
	for i := range sample {
		for {
			idx := s.rng.Intn(s.numData)
			if !containsIndex(sample[:i], idx) {
				sample[i] = idx
				break
			}
		}
	}
}

func containsIndex(ids []int, idx int) bool {
	for _, id := range ids {
		if id == idx {
			return true
		}
	}
	return false
}

// ShuffleAndTruncate shuffles ids in place and keeps the first k. When ids
// already holds k or fewer elements it is returned untouched.
// Only the kept prefix is shuffled (a partial Fisher-Yates pass), which gives
// the same distribution over kept subsets as a full shuffle.
func ShuffleAndTruncate(k int, rng *rand.Rand, ids []int) []int {
	n := len(ids)
	if n <= k {
		return ids
	}
	if k < 0 {
		k = 0
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids[:k]
}
