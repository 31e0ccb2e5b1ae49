package momo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortAllocator_Sequential(t *testing.T) {
	p := NewPortAllocator(60000)
	assert.Equal(t, 60000, p.Next())
	assert.Equal(t, 60001, p.Next())

	var zero PortAllocator
	assert.Equal(t, DefaultPortBase, zero.Next())
	assert.Equal(t, DefaultPortBase, NewPortAllocator(0).Next())
}

func TestPortAllocator_UniqueUnderConcurrency(t *testing.T) {
	p := NewPortAllocator(0)
	const workers, each = 16, 100

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				port := p.Next()
				mu.Lock()
				seen[port] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*each)
}
