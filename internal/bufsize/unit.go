// Package bufsize tracks the symbolic capacity of buffers: which expression
// determines how big an allocation is, in what unit, and whether an array
// subscript can provably reach past it. Facts survive across functions
// through the persisted fact store.
package bufsize

// LimitType is the unit of a size fact. The numeric order is a persisted
// contract: summaries encode the unit as this small integer, so the order
// must never change.
type LimitType int

const (
	ByteCount LimitType = iota + 1 // size in bytes
	ElemCount                      // size in elements
	ElemLast                       // last valid index
	UsedCount                      // elements consumed so far
	UsedLast                       // last index consumed so far
)

var limitMap = [...]string{
	"byte_count",
	"elem_count",
	"elem_last",
	"used_count",
	"used_last",
}

// valid reports whether the tag is inside the enumeration.
func (l LimitType) valid() bool {
	return l >= ByteCount && int(l-ByteCount) < len(limitMap)
}

// String renders the unit for display names and persisted summaries.
// Out-of-range tags render "unknown"; the caller reports the internal
// diagnostic (this must never abort an analysis run).
func (l LimitType) String() string {
	if !l.valid() {
		return "unknown"
	}
	return limitMap[l-ByteCount]
}
