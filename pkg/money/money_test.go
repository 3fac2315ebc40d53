package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	assert.Equal(t, 83.33, Round2(50.0/60.0*100))
	assert.Equal(t, 2500.0, Round2(25.0/60.0*6000))
	assert.Equal(t, 0.1, Round2(0.1+1e-12))
	assert.Equal(t, -1.05, Round2(-1.054))
}
