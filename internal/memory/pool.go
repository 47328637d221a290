package memory

import "sync"

// sizeClass groups storage requests for reuse.
type sizeClass int

const (
	smallClass sizeClass = iota
	mediumClass
	largeClass
)

const (
	smallThreshold  = 1024       // elements (4KB)
	mediumThreshold = 256 * 1024 // elements (1MB)
	maxPooled       = 64         // per class
)

// PoolStats reports pool activity.
type PoolStats struct {
	Allocated uint64
	Released  uint64
	Hits      uint64
	Misses    uint64
	Pooled    int
}

// Pool recycles internally-owned primitive storage. Storage supplied by the
// caller never enters the pool.
type Pool struct {
	mu      sync.Mutex
	classes [3][][]float32
	stats   PoolStats
}

// NewPool creates an empty storage pool.
func NewPool() *Pool {
	return &Pool{}
}

// Acquire returns zeroed storage of exactly n elements.
func (p *Pool) Acquire(n int) []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := classify(n)
	for i, buf := range p.classes[c] {
		if cap(buf) >= n {
			p.classes[c] = append(p.classes[c][:i], p.classes[c][i+1:]...)
			p.stats.Hits++
			buf = buf[:n]
			clear(buf)
			return buf
		}
	}
	p.stats.Misses++
	p.stats.Allocated++
	return make([]float32, n)
}

// Release hands storage back to the pool. Buffers beyond the per-class limit
// are left to the garbage collector.
func (p *Pool) Release(buf []float32) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Released++
	c := classify(cap(buf))
	if len(p.classes[c]) >= maxPooled {
		return
	}
	p.classes[c] = append(p.classes[c], buf[:0])
}

// Clear drops every pooled buffer.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.classes {
		p.classes[c] = nil
	}
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	for _, class := range p.classes {
		s.Pooled += len(class)
	}
	return s
}

func classify(n int) sizeClass {
	switch {
	case n < smallThreshold:
		return smallClass
	case n < mediumThreshold:
		return mediumClass
	default:
		return largeClass
	}
}
