package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := NewPool()

	a := p.Acquire(100)
	assert.Len(t, a, 100)
	a[0] = 42

	p.Release(a)
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Allocated)
	assert.Equal(t, uint64(1), stats.Released)
	assert.Equal(t, 1, stats.Pooled)

	b := p.Acquire(80)
	assert.Len(t, b, 80)
	assert.Equal(t, float32(0), b[0], "reused storage is zeroed")

	stats = p.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0, stats.Pooled)
}

func TestPool_MissOnLargerRequest(t *testing.T) {
	p := NewPool()
	p.Release(p.Acquire(10))

	c := p.Acquire(mediumThreshold)
	assert.Len(t, c, mediumThreshold)
	assert.Equal(t, uint64(2), p.Stats().Misses)
	assert.Equal(t, 1, p.Stats().Pooled)
}

func TestPool_ReleaseNilAndClear(t *testing.T) {
	p := NewPool()
	p.Release(nil)
	assert.Equal(t, uint64(0), p.Stats().Released)

	for i := 0; i < maxPooled+3; i++ {
		p.Release(make([]float32, 4))
	}
	assert.Equal(t, maxPooled, p.Stats().Pooled)

	p.Clear()
	assert.Equal(t, 0, p.Stats().Pooled)
}
