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

func analyzeWith(t *testing.T, cfg *bufsize.Config, src string) []core.Finding {
	t.Helper()
	unit, err := core.ParseBytes(context.Background(), "test.c", []byte(src))
	require.NoError(t, err)

	db, err := factdb.Open(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := bufsize.New(cfg, db, zaptest.NewLogger(t))
	findings, err := a.Run(core.NewAnalysisContext(unit))
	require.NoError(t, err)
	return findings
}

func analyze(t *testing.T, src string) []core.Finding {
	t.Helper()
	return analyzeWith(t, bufsize.DefaultConfig(false), src)
}

func analyzeKernel(t *testing.T, src string) []core.Finding {
	t.Helper()
	return analyzeWith(t, bufsize.DefaultConfig(true), src)
}

func TestAnalyzerMetadata(t *testing.T) {
	db, err := factdb.Open(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	defer db.Close()

	a := bufsize.New(nil, db, nil)
	assert.Equal(t, "buf_size", a.Name())
	assert.NotEmpty(t, a.Description())
}

func TestByteCountAllocation(t *testing.T) {
	findings := analyze(t, `
void alloc_bytes(int n)
{
	char *p = malloc(n);

	p[n] = '\0';
}
`)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "buf_size", f.Check)
	assert.Equal(t, "CWE-193", f.CWE)
	assert.Equal(t, "test.c", f.File)
	assert.Equal(t, "potentially one past the end of array 'p[n]'", f.Message)
	assert.Equal(t, 6, f.Line)
}

func TestElementCountAllocation(t *testing.T) {
	findings := analyze(t, `
void alloc_elems(int n)
{
	int *p = malloc(n * sizeof(*p));
	int i;

	for (i = 0; i < n; i++)
		p[i] = 0;
	p[n] = 0;
}
`)
	require.Len(t, findings, 1, "the guarded loop access is proven in bounds")
	assert.Equal(t, "potentially one past the end of array 'p[n]'", findings[0].Message)
	assert.Equal(t, 9, findings[0].Line)
}

func TestConstantSizeAllocationIsUntracked(t *testing.T) {
	findings := analyze(t, `
void alloc_const(void)
{
	char *p = malloc(16);

	p[16] = '\0';
}
`)
	assert.Empty(t, findings, "fixed-size allocations carry no symbolic fact")
}

func TestLastIndexAllocationToleratesEquality(t *testing.T) {
	findings := analyze(t, `
void alloc_last(int n)
{
	int *p = malloc((n + 1) * sizeof(*p));

	p[n] = 0;
}
`)
	assert.Empty(t, findings, "p holds n+1 elements, p[n] is the last valid slot")
}

func TestEndPointerIdiomIsSilent(t *testing.T) {
	findings := analyze(t, `
void alloc_end(int n)
{
	char *p = malloc(n);
	char *end = &p[n];
}
`)
	assert.Empty(t, findings, "&p[n] is the legal one-past-the-end pointer")
}

func TestBranchAgreementKeepsFact(t *testing.T) {
	findings := analyze(t, `
void pick(int n, int flag)
{
	char *p;

	if (flag)
		p = malloc(n);
	else
		p = malloc(n);
	p[n] = '\0';
}
`)
	require.Len(t, findings, 1)
	assert.Equal(t, "potentially one past the end of array 'p[n]'", findings[0].Message)
}

func TestBranchDisagreementMergesAway(t *testing.T) {
	findings := analyze(t, `
void pick(int n, int m, int flag)
{
	char *p;

	if (flag)
		p = malloc(n);
	else
		p = malloc(m);
	p[n] = '\0';
}
`)
	assert.Empty(t, findings, "disagreeing branches leave no usable fact")
}

func TestMergedFactStaysMergedAcrossRejoin(t *testing.T) {
	findings := analyze(t, `
void pick(int n, int m, int flag)
{
	char *p;

	if (flag)
		p = malloc(n);
	else
		p = malloc(m);
	if (flag)
		p = malloc(n);
	p[n] = '\0';
}
`)
	assert.Empty(t, findings, "a merged fact absorbs a later one-sided concrete fact")
}

func TestOneSidedFactSurvivesJoin(t *testing.T) {
	findings := analyze(t, `
void maybe(int n, int flag)
{
	char *p = 0;

	if (flag)
		p = malloc(n);
	p[n] = '\0';
}
`)
	require.Len(t, findings, 1, "a fact set on one branch only is kept")
	assert.Equal(t, "potentially one past the end of array 'p[n]'", findings[0].Message)
}

func TestWriteToSizeVariableInvalidates(t *testing.T) {
	findings := analyze(t, `
void invalidate(int n)
{
	char *p = malloc(n);

	n = 4;
	p[n] = '\0';
}
`)
	assert.Empty(t, findings, "rewriting the sizing variable drops the fact")
}

func TestPointerCopyCarriesFact(t *testing.T) {
	findings := analyze(t, `
void alias(int n)
{
	char *p = malloc(n);
	char *q;

	q = p;
	q[n] = '\0';
}
`)
	require.Len(t, findings, 1, "an alias inherits the capacity fact")
	assert.Equal(t, "potentially one past the end of array 'q[n]'", findings[0].Message)
}
