package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chrissamuel/smatch/internal/core"
)

func TestStatementExpressionRewrite(t *testing.T) {
	ctx := parseC(t, `
void f(int n)
{
	char *p = ({ void *t; t = alloc(n); t; });

	p[n] = 1;
}
`)

	src := string(ctx.Unit.Source)
	assert.NotContains(t, src, "({")
	assert.Contains(t, src, "{ void *t; t = alloc(n);")
	assert.Contains(t, src, "char *p = (t);")
	assert.False(t, ctx.Unit.Root.HasError(), "the rewritten source parses without recovery")

	// the hoisted form keeps every following line where it was
	sub := findExpr(t, ctx, core.KindSubscript, "p[n]")
	assert.Equal(t, 6, sub.Line())
}

func TestStatementExpressionRewriteSkipsLiterals(t *testing.T) {
	ctx := parseC(t, `
void f(void)
{
	const char *s = "({ not code })";
}
`)
	assert.Contains(t, string(ctx.Unit.Source), `"({ not code })"`)
}
