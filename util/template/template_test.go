package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	assert := assert.New(t)

	vars := map[string]string{"ruleName": "spam", "guildName": "My Guild"}

	assert.Equal("rule spam fired", Render("rule {{ruleName}} fired", vars))
	assert.Equal("rule spam fired", Render("rule {{ ruleName }} fired", vars))
	assert.Equal("banned from My Guild: spam", Render("banned from {{guildName}}: {{ruleName}}", vars))

	// unknown tokens render empty, not as raw syntax
	assert.Equal("hello ", Render("hello {{nope}}", vars))

	// non-token braces pass through
	assert.Equal("a {b} c", Render("a {b} c", vars))
	assert.Equal("plain", Render("plain", nil))
}
