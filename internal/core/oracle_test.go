package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissamuel/smatch/internal/core"
)

func oracleFor(t *testing.T, ctx *core.AnalysisContext, fn string) *core.ScopeOracle {
	t.Helper()
	return core.NewScopeOracle(core.BuildTypeTable(ctx), fn)
}

func TestOracleConstantFolding(t *testing.T) {
	ctx := parseC(t, "void f(void) { int x = 2 * 3 + 4; }")
	o := oracleFor(t, ctx, "f")

	v, ok := o.Value(findExpr(t, ctx, core.KindBinary, "2*3+4"))
	require.True(t, ok)
	assert.Equal(t, int64(10), v)
}

func TestOracleSizeofFolding(t *testing.T) {
	ctx := parseC(t, `
void f(int *p)
{
	unsigned long a = sizeof(*p);
	unsigned long b = sizeof(int);
	unsigned long c = sizeof(char *);
}
`)
	o := oracleFor(t, ctx, "f")

	sizeofs := findAllExprs(ctx, core.KindSizeof, "")
	require.Len(t, sizeofs, 3)

	for i, want := range []int64{4, 4, 8} {
		v, ok := o.Value(sizeofs[i])
		require.True(t, ok, "sizeof #%d", i)
		assert.Equal(t, want, v)
	}
}

func TestOracleGuardComparison(t *testing.T) {
	ctx := parseC(t, "void f(int i, int n) { if (i < n) { } }")
	o := oracleFor(t, ctx, "f")

	cond := findExpr(t, ctx, core.KindBinary, "i<n")
	i := findExpr(t, ctx, core.KindIdent, "i")
	n := findExpr(t, ctx, core.KindIdent, "n")

	assert.Equal(t, core.CompUnknown, o.Compare(i, n))

	o.PushGuard(cond, false)
	assert.Equal(t, core.CompLT, o.Compare(i, n))
	assert.Equal(t, core.CompGT, o.Compare(n, i))
	assert.False(t, o.PossiblyEqual(i, n), "strict ordering excludes equality")
	o.PopGuard()

	// else edge: the negated condition proves i >= n
	o.PushGuard(cond, true)
	assert.Equal(t, core.CompGTE, o.Compare(i, n))
	assert.True(t, o.PossiblyEqual(i, n))
	o.PopGuard()

	assert.Equal(t, core.CompUnknown, o.Compare(i, n))
}

func TestOracleAbsoluteMax(t *testing.T) {
	ctx := parseC(t, "void f(int x) { if (x < 10) { } }")
	o := oracleFor(t, ctx, "f")

	x := findExpr(t, ctx, core.KindIdent, "x")
	_, ok := o.AbsoluteMax(x)
	assert.False(t, ok)

	o.PushGuard(findExpr(t, ctx, core.KindBinary, "x<10"), false)
	max, ok := o.AbsoluteMax(x)
	require.True(t, ok)
	assert.Equal(t, int64(9), max)
}

func TestOracleCopyEquivalence(t *testing.T) {
	ctx := parseC(t, "void f(int c, int n) { c = n; }")
	o := oracleFor(t, ctx, "f")

	c := findExpr(t, ctx, core.KindIdent, "c")
	n := findExpr(t, ctx, core.KindIdent, "n")

	o.RecordAssign(c, n)
	assert.Equal(t, core.CompEQ, o.Compare(c, n))
	assert.True(t, o.PossiblyEqual(c, n))

	equal := o.EqualExprs(c)
	require.Len(t, equal, 1)
	assert.Equal(t, "n", equal[0].Text())

	// rewriting c retires everything derived from it
	o.RetireName("c")
	assert.Equal(t, core.CompUnknown, o.Compare(c, n))
	assert.Empty(t, o.EqualExprs(c))
}

func TestOracleImpliedValueThroughAssignment(t *testing.T) {
	ctx := parseC(t, "void f(int n) { int sz; sz = 4; }")
	o := oracleFor(t, ctx, "f")

	sz := findExpr(t, ctx, core.KindIdent, "sz")
	four := findExpr(t, ctx, core.KindNumber, "4")

	o.RecordAssign(sz, four)
	_, ok := o.Value(sz)
	assert.False(t, ok, "Value ignores flow")
	v, ok := o.ImpliedValue(sz)
	require.True(t, ok)
	assert.Equal(t, int64(4), v)
}

func TestComparisonNegateFlip(t *testing.T) {
	assert.Equal(t, core.CompGTE, core.CompLT.Negate())
	assert.Equal(t, core.CompNE, core.CompEQ.Negate())
	assert.Equal(t, core.CompGT, core.CompLT.Flip())
	assert.Equal(t, core.CompEQ, core.CompEQ.Flip())
	assert.Equal(t, "<=", core.CompLTE.String())
}
