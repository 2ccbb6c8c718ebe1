package bufsize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissamuel/smatch/internal/bufsize"
)

const limiterSrc = `
struct device {
	int count;
	struct item *items;
};

static void reader(struct device *dev, int i)
{
	if (i == dev->count)
		dev->items[i].flag = 1;
}
`

func TestKnownLimitEqualityFallback(t *testing.T) {
	cfg := bufsize.DefaultConfig(false)
	cfg.KnownLimits = append(cfg.KnownLimits, bufsize.KnownLimit{
		Data: "(struct device)->count",
	})

	findings := analyzeWith(t, cfg, limiterSrc)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "potential off by one 'dev->items[]' limit 'dev->count'", f.Message)
	assert.Equal(t, "CWE-193", f.CWE)
	assert.Equal(t, "low", f.Confidence)
}

func TestEqualityFallbackNeedsKnownLimiter(t *testing.T) {
	findings := analyze(t, limiterSrc)
	assert.Empty(t, findings, "without a recorded limiter the equality proves nothing")
}

func TestKnownLimitScopedToArray(t *testing.T) {
	cfg := bufsize.DefaultConfig(false)
	cfg.KnownLimits = append(cfg.KnownLimits, bufsize.KnownLimit{
		Data:  "(struct device)->count",
		Array: "(struct device)->other",
	})

	findings := analyzeWith(t, cfg, limiterSrc)
	assert.Empty(t, findings, "the limiter is tied to a different array")
}

func TestDeclaredBoundProvesAccessSafe(t *testing.T) {
	cfg := bufsize.DefaultConfig(false)
	cfg.KnownLimits = append(cfg.KnownLimits, bufsize.KnownLimit{
		Data: "global limit",
	})

	findings := analyzeWith(t, cfg, `
int limit;

static void reader(int i)
{
	char table[8];

	if (i == limit) {
		if (i < 4)
			table[i] = 1;
	}
}
`)
	assert.Empty(t, findings, "a declared length plus a proven maximum short-circuits")
}
