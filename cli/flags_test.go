package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionUnmarshalFlag(t *testing.T) {
	var v Version
	require.NoError(t, v.UnmarshalFlag("1.2.3"))
	assert.Equal(t, int64(1), v.Major)
	assert.Equal(t, int64(2), v.Minor)
	assert.Equal(t, int64(3), v.Patch)
}

func TestVersionUnmarshalFlagStripsPrefix(t *testing.T) {
	var v Version
	require.NoError(t, v.UnmarshalFlag("v2.0.1"))
	assert.Equal(t, int64(2), v.Major)
}

func TestVersionUnmarshalFlagRejectsGarbage(t *testing.T) {
	var v Version
	assert.Error(t, v.UnmarshalFlag("not-a-version"))
}

func TestParseFlags(t *testing.T) {
	opts := struct {
		Jobs int `short:"j" long:"jobs" default:"1"`
	}{}
	_, extra, err := ParseFlags("test", &opts, []string{"test", "-j", "4", "target"})
	require.NoError(t, err)
	assert.Equal(t, 4, opts.Jobs)
	assert.Equal(t, []string{"target"}, extra)
}
