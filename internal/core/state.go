package core

import "sort"

// State is an opaque per-variable dataflow value owned by a registered
// check. The store never interprets it beyond handing it to the check's own
// handlers.
type State interface{}

// CheckHandlers are the per-check callbacks the store dispatches during
// control-flow joins and on writes to tracked names.
type CheckHandlers struct {
	// Merge combines the states of both branches at a join. Never called
	// with nil operands.
	Merge func(a, b State) State
	// Unmatched decides what happens to a state present on only one branch.
	// A nil handler drops the one-sided state at the join.
	Unmatched func(s State) State
	// Modified fires after a write to a tracked name, late in assignment
	// handling so producing recognizers run first.
	Modified func(w *Walk, name string, s State, write Expr)
}

// StateMap is the per-check-ID name-to-state table driving one function's
// exploration. Forked at branches, merged at joins per the handlers.
type StateMap struct {
	tables   map[int]map[string]State
	handlers map[int]CheckHandlers
}

func NewStateMap() *StateMap {
	return &StateMap{
		tables:   make(map[int]map[string]State),
		handlers: make(map[int]CheckHandlers),
	}
}

// Register binds a check ID to its handlers.
func (m *StateMap) Register(id int, h CheckHandlers) {
	m.handlers[id] = h
	if m.tables[id] == nil {
		m.tables[id] = make(map[string]State)
	}
}

// Set records a state for a canonical name.
func (m *StateMap) Set(id int, name string, s State) {
	t := m.tables[id]
	if t == nil {
		t = make(map[string]State)
		m.tables[id] = t
	}
	t[name] = s
}

// Get returns the current state for a name.
func (m *StateMap) Get(id int, name string) (State, bool) {
	s, ok := m.tables[id][name]
	return s, ok
}

// Delete removes a tracked name.
func (m *StateMap) Delete(id int, name string) {
	delete(m.tables[id], name)
}

// Names lists tracked names for a check, sorted for determinism.
func (m *StateMap) Names(id int) []string {
	t := m.tables[id]
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Fork copies the tables for one branch; handlers are shared.
func (m *StateMap) Fork() *StateMap {
	f := &StateMap{
		tables:   make(map[int]map[string]State, len(m.tables)),
		handlers: m.handlers,
	}
	for id, t := range m.tables {
		ct := make(map[string]State, len(t))
		for name, s := range t {
			ct[name] = s
		}
		f.tables[id] = ct
	}
	return f
}

// MergeFrom joins another branch's tables into this one, dispatching the
// registered Merge/Unmatched handlers per name.
func (m *StateMap) MergeFrom(other *StateMap) {
	ids := make(map[int]bool)
	for id := range m.tables {
		ids[id] = true
	}
	for id := range other.tables {
		ids[id] = true
	}
	for id := range ids {
		h := m.handlers[id]
		mine := m.tables[id]
		theirs := other.tables[id]
		if mine == nil {
			mine = make(map[string]State)
			m.tables[id] = mine
		}

		for name, a := range mine {
			b, ok := theirs[name]
			if ok {
				if h.Merge != nil {
					mine[name] = h.Merge(a, b)
				}
				continue
			}
			if h.Unmatched != nil {
				mine[name] = h.Unmatched(a)
			} else {
				delete(mine, name)
			}
		}
		for name, b := range theirs {
			if _, ok := mine[name]; ok {
				continue
			}
			if h.Unmatched != nil {
				mine[name] = h.Unmatched(b)
			}
		}
	}
}
