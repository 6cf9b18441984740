package parse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronmcdaid/buildcore/core"
)

func parseOne(t *testing.T, src string) *core.Rule {
	t.Helper()
	rules, err := ParseString(src, "test.mk")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	return rules[0]
}

func TestParseCommandRule(t *testing.T) {
	rule := parseOne(t, `out : in { cp in out }`)
	assert.Equal(t, core.CommandRule, rule.Kind)
	assert.Equal(t, []string{"out"}, rule.Targets)
	assert.Equal(t, " cp in out ", rule.Command)
	require.Len(t, rule.Deps, 1)
	assert.Equal(t, "in", rule.Deps[0].Target.Name)
}

func TestParseBareRule(t *testing.T) {
	rule := parseOne(t, `all : a b c ;`)
	assert.Equal(t, core.BareRule, rule.Kind)
	assert.Len(t, rule.Deps, 3)
}

func TestParseHardcodedRule(t *testing.T) {
	rule := parseOne(t, `conf = {content here}`)
	assert.Equal(t, core.HardcodedRule, rule.Kind)
	assert.Equal(t, "content here", string(rule.Content))
}

func TestParseCopyRule(t *testing.T) {
	rule := parseOne(t, `dst = src ;`)
	assert.Equal(t, core.CopyRule, rule.Kind)
	require.NotNil(t, rule.CopySrc)
	assert.Equal(t, "src", rule.CopySrc.Target.Name)
}

func TestParseTransientTarget(t *testing.T) {
	rule := parseOne(t, `@clean : { rm -f out }`)
	assert.Equal(t, []string{"clean"}, rule.Targets)
	assert.Equal(t, []bool{true}, rule.TransientTargets)
}

func TestParseOutputRedirect(t *testing.T) {
	rule := parseOne(t, `>out : { printf hi }`)
	assert.True(t, rule.OutputRedirect)
	assert.Equal(t, []string{"out"}, rule.Targets)
}

func TestParseDependencyFlags(t *testing.T) {
	rule := parseOne(t, `out : -p persist -o option -t trivia { true }`)
	require.Len(t, rule.Deps, 3)
	assert.True(t, rule.Deps[0].Flags.Has(core.Persistent))
	assert.True(t, rule.Deps[1].Flags.Has(core.Optional))
	assert.True(t, rule.Deps[2].Flags.Has(core.Trivial))
}

func TestFlagPlacesRecorded(t *testing.T) {
	rule := parseOne(t, `out : -p in { true }`)
	place, ok := rule.Deps[0].FlagPlaces[core.Persistent]
	require.True(t, ok)
	assert.Equal(t, "test.mk", place.File)
	assert.Equal(t, 1, place.Line)
}

func TestDashNameIsNotAFlag(t *testing.T) {
	rule := parseOne(t, `out : -pthread.c { true }`)
	require.Len(t, rule.Deps, 1)
	assert.Equal(t, "-pthread.c", rule.Deps[0].Target.Name)
	assert.False(t, rule.Deps[0].Flags.Has(core.Persistent))
}

func TestParseDynamicDependency(t *testing.T) {
	rule := parseOne(t, `all : [list] ;`)
	require.Len(t, rule.Deps, 1)
	dep := rule.Deps[0]
	assert.Equal(t, core.KindDynamic, dep.Kind)
	assert.Equal(t, "list", dep.Inner.Target.Name)
}

func TestParseDynamicWithSeparatorFlag(t *testing.T) {
	rule := parseOne(t, `all : [-n list] ;`)
	dep := rule.Deps[0]
	assert.Equal(t, core.KindDynamic, dep.Kind)
	assert.True(t, dep.Flags.Has(core.NewlineSeparated))
}

func TestParseNestedDynamic(t *testing.T) {
	rule := parseOne(t, `all : [[lists]] ;`)
	dep := rule.Deps[0]
	assert.Equal(t, core.KindDynamic, dep.Kind)
	assert.Equal(t, core.KindDynamic, dep.Inner.Kind)
	assert.Equal(t, "lists", dep.Inner.Inner.Target.Name)
}

func TestParseVariableDependency(t *testing.T) {
	rule := parseOne(t, `out : $[CC] { $CC -o out }`)
	dep := rule.Deps[0]
	assert.Equal(t, "CC", dep.VarName)
	assert.True(t, dep.Flags.Has(core.Variable))
}

func TestParseInputRedirect(t *testing.T) {
	rule := parseOne(t, `out : <in { cat > out }`)
	assert.True(t, rule.Deps[0].Flags.Has(core.Input))
	assert.Equal(t, "in", rule.Deps[0].Target.Name)
}

func TestParseGroup(t *testing.T) {
	rule := parseOne(t, `all : (a b) c ;`)
	require.Len(t, rule.Deps, 2)
	assert.Equal(t, core.KindCompound, rule.Deps[0].Kind)
	assert.Len(t, rule.Deps[0].Children, 2)
}

func TestParseConcatenation(t *testing.T) {
	rule := parseOne(t, `all : a.(b c) ;`)
	require.Len(t, rule.Deps, 1)
	dep := rule.Deps[0]
	require.Equal(t, core.KindConcat, dep.Kind)
	require.Len(t, dep.Children, 2)
	assert.Equal(t, "a.", dep.Children[0].Target.Name)
	assert.Equal(t, core.KindCompound, dep.Children[1].Kind)
}

func TestWhitespaceSeparatesDependencies(t *testing.T) {
	rule := parseOne(t, `all : a (b c) ;`)
	// With whitespace before the group this is two dependencies, not a
	// concatenation.
	assert.Len(t, rule.Deps, 2)
}

func TestParseParametrizedTargets(t *testing.T) {
	rule := parseOne(t, `lib$name.a : $name.o { ar rcs lib$name.a $name.o }`)
	assert.Equal(t, []string{"lib$name.a"}, rule.Targets)
	assert.Equal(t, []string{"name"}, rule.Params)
}

func TestParseMultipleTargets(t *testing.T) {
	rule := parseOne(t, `one two : { touch one two }`)
	assert.Equal(t, []string{"one", "two"}, rule.Targets)
}

func TestParseComments(t *testing.T) {
	rules, err := ParseString(`
# a comment
out : in { cp in out } # trailing
`, "test.mk")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestCommandBodyKeepsBracesAndQuotes(t *testing.T) {
	rule := parseOne(t, `out : { awk '{print $1}' < in > out }`)
	assert.Equal(t, ` awk '{print $1}' < in > out `, rule.Command)
}

func TestUnterminatedCommandIsError(t *testing.T) {
	_, err := ParseString(`out : { never closed`, "test.mk")
	assert.Error(t, err)
}

func TestDuplicateFlagIsError(t *testing.T) {
	_, err := ParseString(`out : -p -p in { true }`, "test.mk")
	assert.Error(t, err)
}

func TestDuplicateOutputRedirectionIsError(t *testing.T) {
	_, err := ParseString(`>>out : { printf hi }`, "test.mk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second output redirection")
}

func TestDuplicateInputRedirectionIsError(t *testing.T) {
	_, err := ParseString(`out : <a <b { cat > out }`, "test.mk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second input redirection")
}

func TestPlacePointsAtSource(t *testing.T) {
	rules, err := ParseString("\n\nout : in ;", "rules.mk")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "rules.mk", rules[0].Place.File)
	assert.Equal(t, 3, rules[0].Place.Line)
	assert.Equal(t, 1, rules[0].Place.Column)
}

func TestParseDependencyListAcceptsExpressions(t *testing.T) {
	deps, err := ParseDependencyList("a b [c] @d", "<test>")
	require.NoError(t, err)
	require.Len(t, deps, 4)
	assert.Equal(t, core.KindDynamic, deps[2].Kind)
	assert.True(t, deps[3].Target.IsTransient())
}

func TestLoadBuildsRuleSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.mk")
	require.NoError(t, os.WriteFile(path, []byte("out : in { cp in out }\n"), 0644))

	rs, err := Load(path)
	require.NoError(t, err)
	rule, _, ok := rs.Lookup("out")
	require.True(t, ok)
	assert.Equal(t, core.CommandRule, rule.Kind)
	assert.Equal(t, "out", rs.DefaultTarget())
}

func TestDiscoverFindsNestedRuleFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.mk"), []byte("top : ;\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "build.mk"), []byte("nested : ;\n"), 0644))

	rs, err := Discover(dir)
	require.NoError(t, err)
	_, _, ok := rs.Lookup("top")
	assert.True(t, ok)
	_, _, ok = rs.Lookup("nested")
	assert.True(t, ok)
}
