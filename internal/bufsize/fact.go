package bufsize

import (
	"github.com/chrissamuel/smatch/internal/core"
)

// Check IDs inside the walker's state store.
const (
	sizeID = iota + 1
	linkID
)

// sizeState is one size fact: the buffer keyed under it has capacity equal
// to size, measured in limit. The display name is derived from both and is
// the stable identity used at merges.
type sizeState struct {
	limit LimitType
	size  core.Expr
	name  string
}

// Sentinels. undefinedSize means "we know the size changed"; mergedSize
// means "branches disagreed". Both carry no sizing expression.
var (
	undefinedSize = &sizeState{name: "undefined"}
	mergedSize    = &sizeState{name: "merged"}
)

func (s *sizeState) sentinel() bool {
	return s == undefinedSize || s == mergedSize
}

func newSizeState(limit LimitType, size core.Expr) *sizeState {
	size = size.Strip()
	return &sizeState{
		limit: limit,
		size:  size,
		name:  limit.String() + " " + size.Text(),
	}
}

// equiv is the merge identity: same unit, structurally equivalent sizing
// expressions.
func (s *sizeState) equiv(o *sizeState) bool {
	if s.sentinel() || o.sentinel() {
		return s == o
	}
	return s.limit == o.limit && s.size.Equiv(o.size)
}

// linkState is the inverse entry: the expression keyed under it is the
// current sizing expression of buf. Merged links keep every candidate
// buffer so an invalidating write can still reach all of them.
type linkState struct {
	buf       core.Expr
	possibles []core.Expr
}

// newMergedLink records a join disagreement while keeping the candidates.
func newMergedLink(bufs []core.Expr) *linkState {
	return &linkState{possibles: bufs}
}

func (l *linkState) merged() bool { return !l.buf.Valid() }

// buffers returns every buffer this link may belong to.
func (l *linkState) buffers() []core.Expr {
	if l.buf.Valid() {
		return []core.Expr{l.buf}
	}
	return l.possibles
}
