package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `kaa\_1\%`, escapeLike("kaa_1%"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
}

func TestIsUUID(t *testing.T) {
	assert.True(t, isUUID("7b0c3c4e-4a4e-4d43-9d3f-2b1c9b0a6f11"))
	assert.False(t, isUUID("missing"))
}
