package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceSet_AddRemoveContains(t *testing.T) {
	set := NewPresenceSet()

	set.Add("a")
	set.Add("b")
	set.Add("a")

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("a"))
	assert.False(t, set.Contains("c"))

	set.Remove("a", "c")
	assert.Equal(t, 1, set.Len())
	assert.False(t, set.Contains("a"))
	assert.True(t, set.Contains("b"))
}

func TestPresenceSet_Replace(t *testing.T) {
	set := NewPresenceSet()
	set.Add("stale")

	set.Replace([]string{"x", "y"})

	assert.Equal(t, 2, set.Len())
	assert.False(t, set.Contains("stale"))
	assert.True(t, set.Contains("x"))
	assert.True(t, set.Contains("y"))

	set.Replace(nil)
	assert.Equal(t, 0, set.Len())
}

func TestPresenceSet_ConcurrentAccess(t *testing.T) {
	set := NewPresenceSet()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%10)
			set.Add(key)
			set.Contains(key)
			if n%3 == 0 {
				set.Remove(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, set.Len(), 10)
}
