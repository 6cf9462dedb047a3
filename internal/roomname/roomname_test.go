package roomname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := Generate()
		parts := strings.Split(name, "-")
		assert.Len(t, parts, 3)
		assert.Contains(t, adjectives, parts[0])
		assert.Contains(t, nouns, parts[1])
		assert.Contains(t, animals, parts[2])
	}
}
