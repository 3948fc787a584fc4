package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedTokenGenerator_ReturnsSameToken(t *testing.T) {
	gen := NewFixedTokenGenerator("tok-123")

	assert.Equal(t, "tok-123", gen.Generate())
	assert.Equal(t, "tok-123", gen.Generate())
}

func TestFixedTokenGenerator_EmptyTokenDefault(t *testing.T) {
	assert.Equal(t, "test-invocation", NewFixedTokenGenerator("").Generate())
}

func TestSequentialTokenGenerator(t *testing.T) {
	gen := NewSequentialTokenGenerator("inv")

	assert.Equal(t, "inv-0001", gen.Generate())
	assert.Equal(t, "inv-0002", gen.Generate())

	gen.Reset()
	assert.Equal(t, "inv-0001", gen.Generate())
}

func TestSequentialTokenGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialTokenGenerator("inv")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tok := gen.Generate()
				mu.Lock()
				seen[tok] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000, "every token is unique")
}

func TestFixtures(t *testing.T) {
	a := Address(7)
	assert.Equal(t, byte(7), a[0])
	assert.Equal(t, byte(7), a[19])

	s := Slot(3)
	assert.Equal(t, byte(3), s[0])
	assert.Equal(t, byte(0), s[31])
}
