package levels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	assert := assert.New(t)

	table := Table{"u1": 10, "r1": 40, "r2": 5}

	assert.Equal(40, Resolve(table, "u1", []string{"r1", "r2"}))
	assert.Equal(10, Resolve(table, "u1", []string{"r2"}))
	assert.Equal(10, Resolve(table, "u1", nil))
	assert.Equal(0, Resolve(table, "u9", nil))
	assert.Equal(0, Resolve(nil, "u1", []string{"r1"}))

	// role assignment alone carries the level
	assert.Equal(40, Resolve(table, "u9", []string{"r1"}))
}
