package bufsize

import (
	"go.uber.org/zap"

	"github.com/chrissamuel/smatch/internal/core"
	"github.com/chrissamuel/smatch/internal/factdb"
)

// pass is the per-function analysis state: one walker, the size and link
// tables inside its state store, and the one-shot suppression tokens that
// exempt a link's producing write from invalidation.
type pass struct {
	w     *core.Walk
	cfg   *Config
	db    *factdb.DB
	log   *zap.Logger
	types *core.TypeTable
	funcs *core.FunctionIndex

	// link name -> node ID of the write that produced the link; consumed
	// compare-and-clear on the first modification check.
	suppress map[string]uintptr
	// one-shot exemption set by the narrowing-assignment recognizer.
	ignoreWriteID uintptr

	// parameters already seeded from caller summaries this walk.
	seeded map[int]bool
}

func newPass(w *core.Walk, cfg *Config, db *factdb.DB, log *zap.Logger) *pass {
	p := &pass{
		w:        w,
		cfg:      cfg,
		db:       db,
		log:      log,
		types:    w.Types,
		funcs:    w.Funcs,
		suppress: make(map[string]uintptr),
		seeded:   make(map[int]bool),
	}
	p.registerStates()
	return p
}

func (p *pass) registerStates() {
	p.w.States.Register(sizeID, core.CheckHandlers{
		Merge:     p.mergeSize,
		Unmatched: keepState,
	})
	p.w.States.Register(linkID, core.CheckHandlers{
		Merge:    p.mergeLinks,
		Modified: p.linkModified,
		// no Unmatched handler: one-sided links degrade at joins
	})
}

// There is a bunch of code which does:
//
//	if (size)
//	        foo = malloc(size);
//
// If "size" is non-zero then the size of "foo" is size. But really it's
// also true when size is zero. Keeping the one-sided fact beats trampling
// it at the merge, so an unmatched fact survives as itself.
func keepState(s core.State) core.State { return s }

func (p *pass) mergeSize(a, b core.State) core.State {
	sa, okA := a.(*sizeState)
	sb, okB := b.(*sizeState)
	if !okA || !okB {
		return mergedSize
	}
	if sa.equiv(sb) {
		return sa
	}
	return mergedSize
}

func (p *pass) mergeLinks(a, b core.State) core.State {
	la, okA := a.(*linkState)
	lb, okB := b.(*linkState)
	if !okA || !okB {
		return newMergedLink(nil)
	}
	if !la.merged() && !lb.merged() && la.buf.Equiv(lb.buf) {
		return la
	}
	var bufs []core.Expr
	bufs = append(bufs, la.buffers()...)
	for _, candidate := range lb.buffers() {
		dup := false
		for _, have := range bufs {
			if have.Equiv(candidate) {
				dup = true
				break
			}
		}
		if !dup {
			bufs = append(bufs, candidate)
		}
	}
	return newMergedLink(bufs)
}

// linkModified fires when a tracked sizing expression is written. The
// producing write is exempt exactly once; every later write invalidates the
// linked buffer's fact (to undefined, not merged: we know it changed).
func (p *pass) linkModified(w *core.Walk, name string, s core.State, write Expr) {
	writeID := uintptr(0)
	if write.Node != nil {
		writeID = write.Node.ID()
	}
	if p.ignoreWriteID != 0 && writeID == p.ignoreWriteID {
		p.ignoreWriteID = 0
		return
	}
	if token, ok := p.suppress[name]; ok {
		delete(p.suppress, name)
		if writeID != 0 && token == writeID {
			return
		}
	}

	link, ok := s.(*linkState)
	if !ok {
		return
	}
	for _, buf := range link.buffers() {
		w.States.Set(sizeID, buf.Strip().Text(), undefinedSize)
	}
	w.States.Delete(linkID, name)
}

// Expr is re-exported locally for handler signatures.
type Expr = core.Expr

// setFact records a size fact for a buffer expression.
func (p *pass) setFact(buf Expr, limit LimitType, size Expr) {
	if !buf.Valid() || !size.Valid() {
		return
	}
	if !limit.valid() {
		p.log.Warn("internal: wrong size type", zap.Int("limit_type", int(limit)))
		return
	}
	p.w.States.Set(sizeID, buf.Strip().Text(), newSizeState(limit, size))
}

// fact returns the current size fact for a buffer, nil when unset or
// sentinel.
func (p *pass) fact(buf Expr) *sizeState {
	s, ok := p.w.States.Get(sizeID, buf.Strip().Text())
	if !ok {
		return nil
	}
	st, ok := s.(*sizeState)
	if !ok || st.sentinel() {
		return nil
	}
	return st
}

// addLink records the inverse association size -> buf. The originating
// write (if any) is remembered as a one-shot suppression token so the
// producing assignment does not immediately invalidate its own fact.
func (p *pass) addLink(size, buf Expr, originatingWrite Expr) {
	if !size.Valid() || !buf.Valid() {
		return
	}
	name := size.Strip().Text()
	if originatingWrite.Node != nil {
		p.suppress[name] = originatingWrite.Node.ID()
	}
	p.w.States.Set(linkID, name, &linkState{buf: buf.Strip()})
}

// arrayVariable answers "which buffer does this expression bound", the
// inverse lookup through the link table.
func (p *pass) arrayVariable(size Expr) Expr {
	s, ok := p.w.States.Get(linkID, size.Strip().Text())
	if !ok {
		return Expr{}
	}
	link, ok := s.(*linkState)
	if !ok || link.merged() {
		return Expr{}
	}
	return link.buf
}

// sizeVariable resolves a buffer expression to its sizing expression and
// unit. Pointer-plus-constant-offset expressions resolve through the
// recorded fact when the constant matches the scaled offset.
func (p *pass) sizeVariable(buf Expr) (Expr, LimitType, bool) {
	buf = buf.Strip()
	if !buf.Valid() {
		return Expr{}, 0, false
	}
	if buf.Kind() == core.KindBinary && buf.Operator() == "+" {
		if size, limit, ok := p.sizeVariableFromBinop(buf); ok {
			return size, limit, ok
		}
	}
	st := p.fact(buf)
	if st == nil {
		return Expr{}, 0, false
	}
	return st.size, st.limit, true
}

// sizeVariableFromBinop handles facts on "(p + 2)": when p's byte-count
// fact has the shape "const + var" and the constant equals the subscript
// offset scaled by the element size, the variable side is the bound.
func (p *pass) sizeVariableFromBinop(buf Expr) (Expr, LimitType, bool) {
	offset, ok := p.w.Oracle.Value(buf.Right())
	if !ok {
		return Expr{}, 0, false
	}
	st := p.fact(buf.Left())
	if st == nil {
		return Expr{}, 0, false
	}
	elem := p.types.ElementSize(p.w.Fn.Name, buf.Left())
	if elem == 0 {
		return Expr{}, 0, false
	}
	offsetBytes := offset * int64(elem)

	sizing := st.size.Strip()
	if sizing.Kind() != core.KindBinary || sizing.Operator() != "+" {
		return Expr{}, 0, false
	}
	if v, ok := p.w.Oracle.Value(sizing.Left()); ok && v == offsetBytes {
		return sizing.Right(), st.limit, true
	}
	if v, ok := p.w.Oracle.Value(sizing.Right()); ok && v == offsetBytes {
		return sizing.Left(), st.limit, true
	}
	return Expr{}, 0, false
}

func (p *pass) logDBError(err error) {
	p.log.Warn("persist fact", zap.Error(err))
}

// saveTypeLinks persists the sizing expression's identity so other
// translation units can recognize it as a limiter for this array.
func (p *pass) saveTypeLinks(arrayName string, limit LimitType, size Expr) {
	sizeName := p.types.DataInfoName(p.w.Fn.Name, size)
	if sizeName == "" {
		return
	}
	if err := p.db.InsertDataInfo(sizeName, int(limit), arrayName); err != nil {
		p.log.Warn("persist data_info", zap.Error(err))
		return
	}
	if limit == ElemCount || limit == ElemLast {
		if err := p.db.InsertDataInfo(sizeName, factdb.KindArrayLen, arrayName); err != nil {
			p.log.Warn("persist data_info", zap.Error(err))
		}
	}
}
