package bufsize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountedAllocator(t *testing.T) {
	findings := analyzeKernel(t, `
struct rec {
	int vals[4];
};

void alloc_counted(int n)
{
	struct rec *tab = kcalloc(n, sizeof(*tab), 0);

	tab[n].vals[0] = 1;
}

void alloc_swapped(int n)
{
	struct rec *tab = kcalloc(sizeof(*tab), n, 0);

	tab[n].vals[0] = 1;
}
`)
	require.Len(t, findings, 2, "both argument orders seed the same fact")
	for _, f := range findings {
		assert.Equal(t, "potentially one past the end of array 'tab[n]'", f.Message)
	}
}

func TestSizeTransformChain(t *testing.T) {
	findings := analyze(t, `
void chain(int n)
{
	int *p = malloc(n * sizeof(*p));
	int last = n - 1;
	int count = last + 1;

	p[count] = 1;
}
`)
	require.Len(t, findings, 1, "facts follow the size through -1/+1 transforms")
	assert.Equal(t, "potentially one past the end of array 'p[count]'", findings[0].Message)
}

func TestGuardedNarrowingKeepsFact(t *testing.T) {
	findings := analyze(t, `
void narrow(int n, int m)
{
	char *p = malloc(n);

	if (m < n)
		n = m;
	p[m] = '\0';
}
`)
	require.Len(t, findings, 1, "a provably smaller assignment must not invalidate")
	assert.Equal(t, "potentially one past the end of array 'p[m]'", findings[0].Message)
}

func TestUnguardedSizeWriteInvalidates(t *testing.T) {
	findings := analyze(t, `
void clobber(int n, int m)
{
	char *p = malloc(n);

	n = m;
	p[m] = '\0';
}
`)
	assert.Empty(t, findings, "without a proof the write drops the fact")
}

func TestFlexibleArrayAllocation(t *testing.T) {
	findings := analyzeKernel(t, `
struct packet {
	int len;
	char data[0];
};

static void build(int n)
{
	struct packet *pkt = kmalloc(struct_size(pkt, data, n), 0);

	pkt->data[n] = '\0';
}

static void build_raw(int n)
{
	struct packet *pkt = kmalloc(__ab_c_size(n, 1, sizeof(struct packet)), 0);

	pkt->data[n] = '\0';
}

static void build_sum(int n)
{
	struct packet *pkt = kmalloc(size_add(sizeof(struct packet), size_mul(n, 1)), 0);

	pkt->data[n] = '\0';
}
`)
	require.Len(t, findings, 3, "every struct-plus-count sizing idiom is recognized")
	for _, f := range findings {
		assert.Equal(t, "potentially one past the end of array 'pkt->data[n]'", f.Message)
	}
}

func TestKernelStatementExpressionAllocation(t *testing.T) {
	findings := analyzeKernel(t, `
static void setup(int n)
{
	char *p = ({ void *_res; _res = kmalloc(n, 0); _res; });

	p[n] = '\0';
}
`)
	require.Len(t, findings, 1, "the fact lands on the real pointer, not the temporary")
	assert.Equal(t, "potentially one past the end of array 'p[n]'", findings[0].Message)
}

func TestAllocatorTableIsConfigDriven(t *testing.T) {
	// kernel allocators are not recognized outside kernel mode
	findings := analyze(t, `
void setup(int n)
{
	char *p = kmalloc(n, 0);

	p[n] = '\0';
}
`)
	assert.Empty(t, findings)
}
