package bufsize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chrissamuel/smatch/internal/bufsize"
)

func TestLimitTypeString(t *testing.T) {
	for limit, want := range map[bufsize.LimitType]string{
		bufsize.ByteCount: "byte_count",
		bufsize.ElemCount: "elem_count",
		bufsize.ElemLast:  "elem_last",
		bufsize.UsedCount: "used_count",
		bufsize.UsedLast:  "used_last",
	} {
		assert.Equal(t, want, limit.String())
	}
}

func TestLimitTypeOutOfRange(t *testing.T) {
	assert.Equal(t, "unknown", bufsize.LimitType(0).String())
	assert.Equal(t, "unknown", bufsize.LimitType(99).String())
}

// The numeric encoding is persisted in summaries; it must never shift.
func TestLimitTypeWireValues(t *testing.T) {
	assert.Equal(t, 1, int(bufsize.ByteCount))
	assert.Equal(t, 2, int(bufsize.ElemCount))
	assert.Equal(t, 3, int(bufsize.ElemLast))
	assert.Equal(t, 4, int(bufsize.UsedCount))
	assert.Equal(t, 5, int(bufsize.UsedLast))
}
