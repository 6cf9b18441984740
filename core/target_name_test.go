package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetEqual(t *testing.T) {
	a := PlainFile("foo")
	b := PlainFile("foo")
	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a))

	c := PlainTransient("foo")
	assert.False(t, a.Equal(c), "a file and a transient of the same name are not equal")
}

func TestWrapDynamic(t *testing.T) {
	inner := PlainFile("list")
	once := WrapDynamic(inner)
	assert.True(t, once.IsDynamic())
	assert.Equal(t, 1, once.Depth())

	twice := WrapDynamic(once)
	assert.Equal(t, 2, twice.Depth())
	stripped := twice.StripOne()
	assert.True(t, stripped.Equal(once))
}

func TestCacheKeyDistinguishesFlagsAndName(t *testing.T) {
	file := PlainFile("x")
	transient := PlainTransient("x")
	assert.NotEqual(t, file.CacheKey(), transient.CacheKey())

	dyn := WrapDynamic(PlainFile("x"))
	assert.NotEqual(t, file.CacheKey(), dyn.CacheKey())
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "foo", PlainFile("foo").String())
	assert.Equal(t, "@foo", PlainTransient("foo").String())
	assert.Equal(t, "[foo]", WrapDynamic(PlainFile("foo")).String())
}
