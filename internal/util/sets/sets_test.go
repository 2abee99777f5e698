package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := New("b.jpg", "a.jpg")
	s.Add("c.jpg")
	s.Delete("b.jpg")

	assert.True(t, s.Has("a.jpg"))
	assert.False(t, s.Has("b.jpg"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, Sorted(s))
}
