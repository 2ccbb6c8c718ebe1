package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissamuel/smatch/internal/core"
)

func TestStateMapSetGetDelete(t *testing.T) {
	m := core.NewStateMap()
	m.Register(1, core.CheckHandlers{})

	m.Set(1, "x", "fact")
	s, ok := m.Get(1, "x")
	require.True(t, ok)
	assert.Equal(t, "fact", s)

	m.Delete(1, "x")
	_, ok = m.Get(1, "x")
	assert.False(t, ok)
}

func TestStateMapForkIsolation(t *testing.T) {
	m := core.NewStateMap()
	m.Register(1, core.CheckHandlers{})
	m.Set(1, "x", "before")

	branch := m.Fork()
	branch.Set(1, "x", "after")
	branch.Set(1, "y", "new")

	s, _ := m.Get(1, "x")
	assert.Equal(t, "before", s)
	_, ok := m.Get(1, "y")
	assert.False(t, ok)
}

func TestStateMapMergeDispatch(t *testing.T) {
	m := core.NewStateMap()
	m.Register(1, core.CheckHandlers{
		Merge: func(a, b core.State) core.State {
			if a == b {
				return a
			}
			return "merged"
		},
		Unmatched: func(s core.State) core.State { return s },
	})
	// check 2 has no Unmatched handler: one-sided entries are dropped
	m.Register(2, core.CheckHandlers{
		Merge: func(a, b core.State) core.State { return a },
	})

	m.Set(1, "agree", "same")
	m.Set(1, "differ", "left")
	m.Set(2, "link", "left-only")

	branch := m.Fork()
	branch.Set(1, "differ", "right")
	branch.Set(1, "extra", "one-sided")
	branch.Delete(2, "link")

	m.MergeFrom(branch)

	s, _ := m.Get(1, "agree")
	assert.Equal(t, "same", s)
	s, _ = m.Get(1, "differ")
	assert.Equal(t, "merged", s)
	s, ok := m.Get(1, "extra")
	require.True(t, ok, "Unmatched keeps one-sided states")
	assert.Equal(t, "one-sided", s)

	_, ok = m.Get(2, "link")
	assert.False(t, ok, "no Unmatched handler drops one-sided states")

	assert.Equal(t, []string{"agree", "differ", "extra"}, m.Names(1))
}
