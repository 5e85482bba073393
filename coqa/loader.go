package coqa

import (
	"math/rand"
)

// Loader yields a finite, restartable sequence of collated batches over a
// dataset. Each epoch yields Batches() batches; Reset reshuffles with the
// next seed in a deterministic sequence so runs are reproducible.
type Loader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	seed      int64
	epoch     int64

	order []int
	pos   int
}

// NewLoader builds a loader. batchSize must be positive; the final batch of
// an epoch may be smaller than batchSize.
func NewLoader(dataset Dataset, batchSize int, seed int64, shuffle bool) *Loader {
	l := &Loader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		seed:      seed,
		order:     make([]int, len(dataset)),
	}
	l.reshuffle()
	return l
}

// Batches reports the number of batches per epoch.
func (l *Loader) Batches() int {
	if l.batchSize <= 0 {
		return 0
	}
	return (len(l.dataset) + l.batchSize - 1) / l.batchSize
}

// Next returns the next batch, or false when the epoch is exhausted.
func (l *Loader) Next() (Batch, bool) {
	if l.pos >= len(l.order) {
		return nil, false
	}

	end := min(l.pos+l.batchSize, len(l.order))
	examples := make([]Example, 0, end-l.pos)
	for _, idx := range l.order[l.pos:end] {
		examples = append(examples, l.dataset[idx])
	}
	l.pos = end

	return Collate(examples), true
}

// Reset rewinds the loader for a new epoch.
func (l *Loader) Reset() {
	l.epoch++
	l.reshuffle()
}

func (l *Loader) reshuffle() {
	for i := range l.order {
		l.order[i] = i
	}
	if l.shuffle {
		rng := rand.New(rand.NewSource(l.seed + l.epoch))
		rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}
