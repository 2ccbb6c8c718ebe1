package factdb_test

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissamuel/smatch/internal/factdb"
)

func openDB(t *testing.T) *factdb.DB {
	t.Helper()
	db, err := factdb.Open(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCallerInfoRoundTrip(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.InsertCallerInfo("frob", false, 2, 0, "==$1", "2"))
	require.NoError(t, db.InsertCallerInfo("frob", false, 1, 2, "==$3", "1"))
	require.NoError(t, db.InsertCallerInfo("other", true, 2, 0, "==$1", "2"))

	rows, err := db.SelectCallerInfo("frob")
	require.NoError(t, err)

	want := []factdb.Row{
		{Function: "frob", Static: false, Type: 2, Parameter: 0, Key: "==$1", Value: "2"},
		{Function: "frob", Static: false, Type: 1, Parameter: 2, Key: "==$3", Value: "1"},
	}
	assert.Empty(t, cmp.Diff(want, rows))
}

func TestCallImpliesRoundTrip(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.InsertCallImplies("copy_in", true, 1, 1, "==$2", "1"))
	rows, err := db.SelectCallImplies("copy_in")
	require.NoError(t, err)

	want := []factdb.Row{
		{Function: "copy_in", Static: true, Type: 1, Parameter: 1, Key: "==$2", Value: "1"},
	}
	assert.Empty(t, cmp.Diff(want, rows))

	rows, err = db.SelectCallImplies("unknown")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsertDedupe(t *testing.T) {
	db := openDB(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertCallerInfo("dup", false, 2, 0, "==$1", "2"))
	}
	rows, err := db.SelectCallerInfo("dup")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestIsKnownLimit(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.InsertDataInfo("(struct dev)->count", factdb.KindArrayLen, "(struct dev)->items"))
	require.NoError(t, db.InsertDataInfo("global max", factdb.KindArrayLen, ""))
	// a non-array-length row must not count
	require.NoError(t, db.InsertDataInfo("(struct dev)->bytes", 1, "(struct dev)->items"))

	known, err := db.IsKnownLimit("(struct dev)->count", "(struct dev)->items")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = db.IsKnownLimit("(struct dev)->count", "(struct other)->items")
	require.NoError(t, err)
	assert.False(t, known, "row tied to a different array")

	known, err = db.IsKnownLimit("(struct dev)->count", "")
	require.NoError(t, err)
	assert.True(t, known, "unknown array identity matches any row")

	known, err = db.IsKnownLimit("global max", "anything")
	require.NoError(t, err)
	assert.True(t, known, "wildcard row limits everything")

	known, err = db.IsKnownLimit("(struct dev)->bytes", "(struct dev)->items")
	require.NoError(t, err)
	assert.False(t, known)

	known, err = db.IsKnownLimit("nosuch", "x")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestOpenMemory(t *testing.T) {
	db, err := factdb.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InsertCallerInfo("memfn_roundtrip", false, 3, 1, "==$0", "3"))
	rows, err := db.SelectCallerInfo("memfn_roundtrip")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
