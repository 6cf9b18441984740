package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFlattensCompound(t *testing.T) {
	a := Plain(PlainFile("a"), 0)
	b := Plain(PlainFile("b"), 0)
	grouped := Compound(Trivial, a, b)
	out := Normalize(grouped)
	if assert.Len(t, out, 2) {
		assert.True(t, out[0].Flags.Has(Trivial))
		assert.True(t, out[1].Flags.Has(Trivial))
	}
}

func TestNormalizeConcatSingleLayer(t *testing.T) {
	a := Plain(PlainFile("a"), 0)
	nested := Concat(Plain(PlainFile("b"), 0), Plain(PlainFile("c"), 0))
	top := Concat(a, nested)
	out := Normalize(top)
	if assert.Len(t, out, 1) {
		assert.Equal(t, KindConcat, out[0].Kind)
		// nested Concat's children should have been flattened into the
		// single designated Concat layer.
		assert.Len(t, out[0].Children, 3)
	}
}

func TestValidateRejectsPersistentAndOptional(t *testing.T) {
	d := Plain(PlainFile("a"), Persistent|Optional)
	err := d.Validate()
	if assert.NotNil(t, err) {
		assert.Equal(t, Logical, err.Mask)
	}
}

func TestValidateRejectsVariableWithTrivial(t *testing.T) {
	d := PlainVar(PlainFile("a"), Trivial, "X")
	err := d.Validate()
	assert.NotNil(t, err)
}

func TestValidateAcceptsPlainVariable(t *testing.T) {
	d := PlainVar(PlainFile("a"), 0, "X")
	assert.Nil(t, d.Validate())
}
