package bufsize_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissamuel/smatch/internal/bufsize"
	"github.com/chrissamuel/smatch/internal/core"
	"github.com/chrissamuel/smatch/internal/factdb"
)

func TestUsedIndexBridgesToCallee(t *testing.T) {
	findings := analyze(t, `
void fill(char *buf, int *pos)
{
	buf[(*pos)++] = 'a';

	flush(buf, *pos);
}

void flush(char *buf, int len)
{
	buf[len] = '\0';
}
`)
	require.Len(t, findings, 1, "the consumed-count fact reaches the callee as an element count")
	f := findings[0]
	assert.Equal(t, "potentially one past the end of array 'buf[len]'", f.Message)
	assert.Equal(t, 11, f.Line)
}

func TestCallerSummaryCrossesUnits(t *testing.T) {
	db, err := factdb.Open(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	defer db.Close()

	run := func(name, src string) []core.Finding {
		unit, err := core.ParseBytes(context.Background(), name, []byte(src))
		require.NoError(t, err)
		a := bufsize.New(bufsize.DefaultConfig(false), db, zaptest.NewLogger(t))
		findings, err := a.Run(core.NewAnalysisContext(unit))
		require.NoError(t, err)
		return findings
	}

	callerFindings := run("caller.c", `
void use(int len)
{
	char *data = malloc(len);

	consume(data, len);
}
`)
	assert.Empty(t, callerFindings)

	calleeFindings := run("callee.c", `
void consume(char *data, int len)
{
	data[len] = '\0';
}
`)
	require.Len(t, calleeFindings, 1, "the persisted summary seeds the parameter fact")
	f := calleeFindings[0]
	assert.Equal(t, "callee.c", f.File)
	assert.Equal(t, "potentially one past the end of array 'data[len]'", f.Message)
}

func TestCopyImpliesBridgesToCaller(t *testing.T) {
	findings := analyzeKernel(t, `
int copy_in(void *dst, void *src, int n)
{
	return copy_from_user(dst, src, n);
}

void handler(char *buf, char *user, int len)
{
	copy_in(buf, user, len);
	user[len] = '\0';
}
`)
	require.Len(t, findings, 1, "the callee's bulk copy bounds the caller's argument")
	assert.Equal(t, "potentially one past the end of array 'user[len]'", findings[0].Message)
}

func TestTouchedParameterWritesNoCopySummary(t *testing.T) {
	findings := analyzeKernel(t, `
int copy_in(void *dst, void *src, int n)
{
	n = 0;
	return copy_from_user(dst, src, n);
}

void handler(char *buf, char *user, int len)
{
	copy_in(buf, user, len);
	user[len] = '\0';
}
`)
	assert.Empty(t, findings, "a rewritten size parameter is not a usable bound")
}
