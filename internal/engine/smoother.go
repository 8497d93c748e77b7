package engine

import "gonum.org/v1/gonum/stat"

// WindowSize is the number of raw angle samples averaged per frame.
const WindowSize = 5

// Smoother is a fixed-size sliding window over raw angle samples. It is a value
// type: copying a Smoother copies its samples.
type Smoother struct {
	samples [WindowSize]float64
	n       int // samples held, ≤ WindowSize
	next    int // ring index of the next write
}

// Add records a sample, evicting the oldest once the window is full, and
// returns the mean of the window.
func (s *Smoother) Add(v float64) float64 {
	s.samples[s.next] = v
	s.next = (s.next + 1) % WindowSize
	if s.n < WindowSize {
		s.n++
	}
	return s.Mean()
}

// Mean returns the arithmetic mean of the window, or 0 when empty.
func (s *Smoother) Mean() float64 {
	if s.n == 0 {
		return 0
	}
	return stat.Mean(s.Values(), nil)
}

// Len returns the number of samples held.
func (s *Smoother) Len() int {
	return s.n
}

// Values returns the samples oldest first.
func (s *Smoother) Values() []float64 {
	out := make([]float64, 0, s.n)
	start := (s.next - s.n + WindowSize) % WindowSize
	for i := 0; i < s.n; i++ {
		out = append(out, s.samples[(start+i)%WindowSize])
	}
	return out
}

// Reset empties the window.
func (s *Smoother) Reset() {
	*s = Smoother{}
}
