package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolutionCache_Key(t *testing.T) {
	c := NewResolutionCache(nil, 0)
	assert.Equal(t, "thistle:resolve:v1:gotsport:1001", c.Key("v1", "gotsport", "1001"))
	assert.NotEqual(t, c.Key("v1", "gotsport", "1001"), c.Key("v2", "gotsport", "1001"))
}
