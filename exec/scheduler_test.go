package exec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronmcdaid/buildcore/core"
	"github.com/aaronmcdaid/buildcore/parse"
)

// inTempDir switches the test into a fresh directory; file targets in rule
// texts are relative paths.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func ruleSet(t *testing.T, src string) *core.RuleSet {
	t.Helper()
	rules, err := parse.ParseString(src, "test.mk")
	require.NoError(t, err)
	rs := core.NewRuleSet()
	for _, r := range rules {
		require.NoError(t, rs.Add(r))
	}
	return rs
}

func fileDeps(targets ...string) []*core.Dependency {
	deps := make([]*core.Dependency, len(targets))
	for i, tgt := range targets {
		deps[i] = core.Plain(core.PlainFile(tgt), 0)
	}
	return deps
}

func writeFile(t *testing.T, name, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(name, mtime, mtime))
	}
}

func TestRebuildOnNewerDependency(t *testing.T) {
	inTempDir(t)
	old := time.Now().Add(-2 * time.Hour)
	writeFile(t, "out", "stale", old)
	writeFile(t, "in", "fresh", old.Add(time.Hour))

	eng := NewEngine(ruleSet(t, `out : in { cp in out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	assert.True(t, eng.CommandRan)
	data, err := os.ReadFile("out")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestUpToDateRunsNothing(t *testing.T) {
	inTempDir(t)
	old := time.Now().Add(-2 * time.Hour)
	writeFile(t, "in", "input", old)
	writeFile(t, "out", "built", old.Add(time.Hour))

	eng := NewEngine(ruleSet(t, `out : in { cp in out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	assert.False(t, eng.CommandRan)
	data, _ := os.ReadFile("out")
	assert.Equal(t, "built", string(data))
}

func TestMissingFileWithNoRule(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(core.NewRuleSet(), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("foo"))

	assert.Equal(t, core.Build, mask)
	assert.Equal(t, 1, mask.ExitCode())
}

func TestDynamicDependencies(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : [list] { touch all }
list : { printf 'a b' > list }
a : { touch a }
b : { touch b }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.NoError, mask)
	for _, f := range []string{"list", "a", "b", "all"} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
}

func TestDynamicDependencyWithoutRuleFails(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : [list] { touch all }
list : { printf 'nowhere' > list }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.Build, mask)
	_, err := os.Stat("all")
	assert.True(t, os.IsNotExist(err))
}

func TestNewlineSeparatedDynamic(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : [-n list] { touch all }
list : { printf 'a\nb\n' > list }
a : { touch a }
b : { touch b }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.NoError, mask)
	for _, f := range []string{"a", "b", "all"} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
}

func TestCycleIsLogicalError(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
a : b { touch a }
b : a { touch b }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("a"))

	assert.Equal(t, core.Logical, mask&core.Logical)
	assert.Equal(t, 2, mask.ExitCode())
	assert.False(t, eng.CommandRan)
	_, err := os.Stat("a")
	assert.True(t, os.IsNotExist(err))
}

func TestKeepGoingCollectsAllFailures(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : x y ;
x : { false }
y : { false }
`), 1)
	eng.Silent = true
	eng.KeepGoing = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.Build, mask&core.Build)
	assert.Equal(t, 1, mask.ExitCode())
	assert.True(t, eng.CommandRan)
	// Both command failures were reported, not just the first.
	merr := eng.Errors()
	require.Error(t, merr)
	assert.Contains(t, merr.Error(), "x")
	assert.Contains(t, merr.Error(), "y")
}

func TestFirstFailureStopsWithoutKeepGoing(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : x y ;
x : { false }
y : { touch y }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.Build, mask&core.Build)
	_, err := os.Stat("y")
	assert.True(t, os.IsNotExist(err))
}

func TestHardcodedRule(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `conf = {hello world}`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("conf"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("conf")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestCopyRule(t *testing.T) {
	inTempDir(t)
	writeFile(t, "src", "payload", time.Time{})
	eng := NewEngine(ruleSet(t, `dst = src ;`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("dst"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("dst")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestOptionalMissingDependency(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `out : -o missing { touch out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	_, err := os.Stat("out")
	assert.NoError(t, err)
}

func TestForceNonOptionalTurnsMissingIntoError(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `out : -o missing { touch out }`), 1)
	eng.Silent = true
	eng.ForceNonOptional = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.Build, mask&core.Build)
}

func TestPersistentDependencyDoesNotPropagateTimestamp(t *testing.T) {
	inTempDir(t)
	old := time.Now().Add(-2 * time.Hour)
	writeFile(t, "out", "built", old)
	writeFile(t, "in", "newer", old.Add(time.Hour))

	eng := NewEngine(ruleSet(t, `out : -p in { cp in out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	assert.False(t, eng.CommandRan)
}

func TestTrivialDependencyAloneNeverRebuilds(t *testing.T) {
	inTempDir(t)
	old := time.Now().Add(-2 * time.Hour)
	writeFile(t, "out", "built", old)
	writeFile(t, "in", "newer", old.Add(time.Hour))

	eng := NewEngine(ruleSet(t, `out : -t in { cp in out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	assert.False(t, eng.CommandRan)
}

func TestTrivialDependencyBuiltWhenRebuildingAnyway(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
out : -t gen { cp gen out }
gen : { printf 'made' > gen }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("out")
	require.NoError(t, err)
	assert.Equal(t, "made", string(data))
}

func TestTransientTargets(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : @gen { touch all }
@gen : { touch marker }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.NoError, mask)
	_, err := os.Stat("marker")
	assert.NoError(t, err)
	_, err = os.Stat("all")
	assert.NoError(t, err)
}

func TestConcatenationArity(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : a.(b c d) { touch all }
a.b : { touch a.b }
a.c : { touch a.c }
a.d : { touch a.d }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.NoError, mask)
	for _, f := range []string{"a.b", "a.c", "a.d", "all"} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
}

func TestEphemeralExecutionsLeaveNoStaleParents(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : a.(b c) { touch all }
a.b : { touch a.b }
a.c : { touch a.c }
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))
	require.Equal(t, core.NoError, mask)

	// The Concatenated execution was torn down on disconnect; no cached
	// execution may still hold it (or anything else) in its parent map.
	for name, f := range eng.filesByTarget {
		assert.Zero(t, f.base.NumParents(), name)
	}
}

func TestTeardownSeversRemainingEdges(t *testing.T) {
	inTempDir(t)
	writeFile(t, "x", "x", time.Time{})
	eng := NewEngine(core.NewRuleSet(), 1)
	concat := newConcatExec(eng, core.Concat(core.Plain(core.PlainFile("a"), 0)))
	child, _ := eng.lookupOrCreateFile("x")
	link := core.Link{Dep: core.Plain(core.PlainFile("x"), 0)}
	child.base.AddParent(concat, link)
	concat.base.children = append(concat.base.children, &childEdge{child: child, link: link})

	teardown(concat)

	assert.Zero(t, child.base.NumParents())
	assert.Empty(t, concat.base.children)
	assert.Nil(t, concat.base.result)
}

func TestConcatenationWithTransientIsLogical(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : a.(@b) { touch all }
@b : ;
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("all"))

	assert.Equal(t, core.Logical, mask&core.Logical)
}

func TestQuestionMode(t *testing.T) {
	inTempDir(t)
	old := time.Now().Add(-2 * time.Hour)
	writeFile(t, "out", "stale", old)
	writeFile(t, "in", "fresh", old.Add(time.Hour))

	eng := NewEngine(ruleSet(t, `out : in { cp in out }`), 1)
	eng.Silent = true
	eng.Question = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.Build, mask&core.Build)
	data, _ := os.ReadFile("out")
	assert.Equal(t, "stale", string(data), "question mode must not build anything")
}

func TestFailedCommandOutputRemoved(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `out : { printf 'partial' > out; false }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.Build, mask&core.Build)
	_, err := os.Stat("out")
	assert.True(t, os.IsNotExist(err), "partially built file must be unlinked")
}

func TestFailedCommandOutputKeptWithNoDelete(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `out : { printf 'partial' > out; false }`), 1)
	eng.Silent = true
	eng.NoDelete = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.Build, mask&core.Build)
	data, err := os.ReadFile("out")
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
}

func TestParametrizedRule(t *testing.T) {
	inTempDir(t)
	writeFile(t, "foo.in", "param", time.Time{})
	eng := NewEngine(ruleSet(t, `$name.out : $name.in { cp $name.in $name.out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("foo.out"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("foo.out")
	require.NoError(t, err)
	assert.Equal(t, "param", string(data))
}

func TestParameterPassedInEnvironment(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `hello-$who : { printf '%s' "$who" > hello-$who }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("hello-world"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("hello-world")
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestVariableDependency(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
out : $[v] { printf '%s' "$v" > out }
v = {expected-value}
`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("out")
	require.NoError(t, err)
	assert.Equal(t, "expected-value", string(data))
}

func TestBareRuleMissingFileIsError(t *testing.T) {
	inTempDir(t)
	writeFile(t, "dep", "x", time.Time{})
	eng := NewEngine(ruleSet(t, `out : dep ;`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.Build, mask&core.Build)
}

func TestMultiTargetRuleSharesExecution(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `one two : { touch one two }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("one", "two"))

	assert.Equal(t, core.NoError, mask)
	// One command run for both targets: cache coherence.
	assert.Equal(t, 1, eng.BuiltCount)
}

func TestParallelJobs(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `
all : x y z ;
x : { touch x }
y : { touch y }
z : { touch z }
`), 3)
	eng.Silent = true
	mask := Run(eng, fileDeps("x", "y", "z"))

	assert.Equal(t, core.NoError, mask)
	for _, f := range []string{"x", "y", "z"} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
}

func TestInputRedirection(t *testing.T) {
	inTempDir(t)
	writeFile(t, "in", "redirected", time.Time{})
	eng := NewEngine(ruleSet(t, `out : <in { cat > out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("out")
	require.NoError(t, err)
	assert.Equal(t, "redirected", string(data))
}

func TestOutputRedirection(t *testing.T) {
	inTempDir(t)
	eng := NewEngine(ruleSet(t, `>out : { printf 'stdout' }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("out"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile("out")
	require.NoError(t, err)
	assert.Equal(t, "stdout", string(data))
}

func TestWatchedFilesListed(t *testing.T) {
	inTempDir(t)
	old := time.Now().Add(-time.Hour)
	writeFile(t, "in", "x", old)
	writeFile(t, "out", "y", old.Add(time.Minute))
	eng := NewEngine(ruleSet(t, `out : in { cp in out }`), 1)
	eng.Silent = true
	Run(eng, fileDeps("out"))

	files := eng.WatchedFiles()
	assert.Contains(t, files, "in")
	assert.Contains(t, files, "out")
}

func TestBuildIntoSubdirectory(t *testing.T) {
	// Builds into a subdirectory to check nothing depends on cwd-relative
	// assumptions beyond the working directory itself.
	inTempDir(t)
	require.NoError(t, os.Mkdir("sub", 0755))
	writeFile(t, filepath.Join("sub", "in"), "deep", time.Time{})
	eng := NewEngine(ruleSet(t, `sub/out : sub/in { cp sub/in sub/out }`), 1)
	eng.Silent = true
	mask := Run(eng, fileDeps("sub/out"))

	assert.Equal(t, core.NoError, mask)
	data, err := os.ReadFile(filepath.Join("sub", "out"))
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
}
