package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResetPoolClearsOnPut(t *testing.T) {
	p := NewResetPool(func() map[string]int { return make(map[string]int) }, func(m map[string]int) { clear(m) })

	m := p.Get()
	m["a"] = 1
	p.Put(m)
	assert.Empty(t, m)

	// whatever comes back, pooled or fresh, is empty
	assert.Empty(t, p.Get())
}

func TestPoolWithoutReset(t *testing.T) {
	calls := 0
	p := NewPool(func() *int { calls++; v := 0; return &v })
	v := p.Get()
	*v = 7
	p.Put(v)
	assert.Equal(t, 1, calls)
}
