package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateLevel(t *testing.T) {
	assert := assert.New(t)

	assert.True(EvaluateLevel(">=5", 5))
	assert.False(EvaluateLevel(">=5", 4))
	assert.True(EvaluateLevel(">=5", 100))
	assert.True(EvaluateLevel("> 10", 11))
	assert.False(EvaluateLevel("> 10", 10))
	assert.True(EvaluateLevel("<50", 0))
	assert.True(EvaluateLevel("<= 0", 0))
	assert.True(EvaluateLevel("=25", 25))
	assert.False(EvaluateLevel("=25", 26))

	// "<0" can never match a non-negative level
	for _, lvl := range []int{0, 1, 50, 100} {
		assert.False(EvaluateLevel("<0", lvl))
	}
}

func TestEvaluateNumeric(t *testing.T) {
	assert := assert.New(t)

	assert.True(EvaluateNumeric(">=3", 3))
	assert.True(EvaluateNumeric("<=-5", -10))
	assert.False(EvaluateNumeric("<=-5", -4))
	assert.True(EvaluateNumeric("=-1", -1))
	assert.True(EvaluateNumeric("  >=  3  ", 4))
}

func TestMalformedConditions(t *testing.T) {
	assert := assert.New(t)

	// malformed conditions degrade to non-match, never panic
	for _, cond := range []string{"", "~~", ">=", "5", ">= five", "== 5", "> 5 >", ">> 2"} {
		assert.False(EvaluateLevel(cond, 50), "cond %q", cond)
		assert.False(EvaluateNumeric(cond, 50), "cond %q", cond)
	}
}

func TestParse(t *testing.T) {
	assert := assert.New(t)

	p, ok := Parse(">= 12")
	assert.True(ok)
	assert.Equal(">=", p.Op)
	assert.Equal(int64(12), p.Value)

	_, ok = Parse("nope")
	assert.False(ok)
}
