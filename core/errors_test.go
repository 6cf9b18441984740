package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodePrecedence(t *testing.T) {
	assert.Equal(t, 0, NoError.ExitCode())
	assert.Equal(t, 1, Build.ExitCode())
	assert.Equal(t, 2, Logical.ExitCode())
	assert.Equal(t, 4, Fatal.ExitCode())
	assert.Equal(t, 4, (Build | Logical | Fatal).ExitCode())
	assert.Equal(t, 2, (Build | Logical).ExitCode())
}

func TestBuildErrorWithPlaceAppends(t *testing.T) {
	err := Raise(Build, "//foo:bar", "command failed")
	err = err.WithPlace(Place{File: "rules.mk", Line: 3})
	err = err.WithPlace(Place{File: "rules.mk", Line: 9})
	assert.Len(t, err.Trace, 2)
	assert.Contains(t, err.FormatTrace(), "depends on")
}
