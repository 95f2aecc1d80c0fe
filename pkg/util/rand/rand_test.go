package rand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewName(t *testing.T) {
	for i := 0; i < 50; i++ {
		adj, place, ok := strings.Cut(NewName(), "-")
		assert.True(t, ok)
		assert.Contains(t, adjectives, adj)
		assert.Contains(t, places, place)
	}
}

func TestNewPassword(t *testing.T) {
	assert.Len(t, NewPassword(), 16)
	assert.Len(t, NewPassword(0), 16)
	assert.Len(t, NewPassword(24), 24)
	assert.NotEqual(t, NewPassword(), NewPassword())
}
