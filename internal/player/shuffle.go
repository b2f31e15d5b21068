package player

import "math/rand/v2"

// shuffler is the materialized shuffle order of one cycle through the queue.
//
// pos counts the entries of order already played in this cycle.
// limit is where repeat none stops: a cycle built around the current track ends before replaying it.
type shuffler struct {
	rng   *rand.Rand
	order []int
	pos   int
	limit int
}

func newShuffler(rng *rand.Rand) *shuffler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &shuffler{rng: rng}
}

// rebuild starts a new cycle over n tracks with current placed last.
func (s *shuffler) rebuild(n, current int) {
	s.pos = 0
	s.order = s.order[:0]
	if n == 0 {
		s.limit = 0
		return
	}

	for i := 0; i < n; i++ {
		if i != current {
			s.order = append(s.order, i)
		}
	}
	s.rng.Shuffle(len(s.order), func(i, j int) { s.order[i], s.order[j] = s.order[j], s.order[i] })
	s.order = append(s.order, current)
	s.limit = n - 1
}

// reshuffle starts the next cycle. The first entry differs from last when possible.
func (s *shuffler) reshuffle(last int) {
	n := len(s.order)
	perm := s.rng.Perm(n)
	if n > 1 && perm[0] == last {
		k := 1 + s.rng.IntN(n-1)
		perm[0], perm[k] = perm[k], perm[0]
	}
	s.order = perm
	s.pos = 0
	s.limit = n
}

// next returns the next index, or false when playback should stop.
func (s *shuffler) next(repeat RepeatMode, current int) (int, bool) {
	if len(s.order) == 0 {
		return 0, false
	}
	if s.pos >= s.limit && repeat != RepeatAll {
		return 0, false
	}
	if s.pos >= len(s.order) {
		s.reshuffle(current)
	}
	idx := s.order[s.pos]
	s.pos++
	return idx, true
}

// prev steps back within the cycle, or returns false when there is nothing before the current track.
func (s *shuffler) prev() (int, bool) {
	if s.pos < 2 {
		return 0, false
	}
	s.pos--
	return s.order[s.pos-1], true
}
