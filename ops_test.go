package skipstore

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T) (*Handle, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.skip")
	h, err := Open(path, Create|OrderedBytes)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, path
}

func collect(t *testing.T, h *Handle, prefix string) map[string]string {
	t.Helper()
	got := make(map[string]string)
	err := Foreach(h, []byte(prefix), nil, func(key, value []byte) (bool, error) {
		got[string(key)] = string(value)
		return true, nil
	})
	require.NoError(t, err)
	return got
}

// S1: an empty file's foreach yields nothing.
func TestScenarioEmptyStore(t *testing.T) {
	h, _ := newTestHandle(t)
	require.Empty(t, collect(t, h, ""))
}

// S2: a single committed insert survives a close/reopen round-trip.
func TestScenarioSingleInsertReopen(t *testing.T) {
	h, path := newTestHandle(t)
	require.NoError(t, Store(h, []byte("k"), []byte("v"), nil))
	require.NoError(t, h.Close())

	reopened, err := Open(path, OrderedBytes)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := Fetch(reopened, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(value))

	want := map[string]string{"k": "v"}
	if diff := cmp.Diff(want, collect(t, reopened, "")); diff != "" {
		t.Fatalf("foreach mismatch (-want +got):\n%s", diff)
	}
}

// S3: keys are visited in ascending order regardless of insertion order.
func TestScenarioOrderedIteration(t *testing.T) {
	h, _ := newTestHandle(t)
	require.NoError(t, Store(h, []byte("a"), []byte("1"), nil))
	require.NoError(t, Store(h, []byte("c"), []byte("3"), nil))
	require.NoError(t, Store(h, []byte("b"), []byte("2"), nil))

	var order []string
	err := Foreach(h, nil, nil, func(key, value []byte) (bool, error) {
		order = append(order, string(key)+"="+string(value))
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a=1", "b=2", "c=3"}, order)
}

// S4: aborting a replace restores the previously committed value.
func TestScenarioReplaceThenAbort(t *testing.T) {
	h, _ := newTestHandle(t)
	require.NoError(t, Store(h, []byte("k"), []byte("v1"), nil))

	txn, err := Begin(h)
	require.NoError(t, err)
	require.NoError(t, Store(h, []byte("k"), []byte("v2"), txn))
	require.NoError(t, Abort(h, txn))

	value, err := Fetch(h, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(value))
}

// S5 (handle-level slice): deleting inside an aborted transaction leaves
// the key visible, mirroring the "kill process before commit" scenario at
// the API layer where an explicit abort stands in for the crash.
func TestScenarioDeleteThenAbort(t *testing.T) {
	h, _ := newTestHandle(t)
	require.NoError(t, Store(h, []byte("k"), []byte("v"), nil))

	txn, err := Begin(h)
	require.NoError(t, err)
	require.NoError(t, Delete(h, []byte("k"), txn, false))
	require.NoError(t, Abort(h, txn))

	value, err := Fetch(h, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(value))
}

func TestFetchMissingKeyIsNotFound(t *testing.T) {
	h, _ := newTestHandle(t)
	_, err := Fetch(h, []byte("absent"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFailsOnExistingKey(t *testing.T) {
	h, _ := newTestHandle(t)
	require.NoError(t, Create(h, []byte("k"), []byte("v"), nil))
	err := Create(h, []byte("k"), []byte("v2"), nil)
	require.ErrorIs(t, err, ErrExists)
}

func TestDeleteMissingKeyWithoutForceIsNotFound(t *testing.T) {
	h, _ := newTestHandle(t)
	err := Delete(h, []byte("absent"), nil, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingKeyWithForceSucceeds(t *testing.T) {
	h, _ := newTestHandle(t)
	require.NoError(t, Delete(h, []byte("absent"), nil, true))
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	h, _ := newTestHandle(t)
	err := Store(h, []byte{}, []byte("v"), nil)
	require.ErrorIs(t, err, ErrBadParam)
}

// Deleting the only live record leaves the list empty and a subsequent
// store against a fresh key must still succeed (boundary behavior: "the
// next store with a fresh key appends and stitches against the dummy").
func TestDeleteOnlyRecordThenStoreFresh(t *testing.T) {
	h, _ := newTestHandle(t)
	require.NoError(t, Store(h, []byte("k"), []byte("v"), nil))
	require.NoError(t, Delete(h, []byte("k"), nil, false))
	require.Empty(t, collect(t, h, ""))

	require.NoError(t, Store(h, []byte("z"), []byte("26"), nil))
	value, err := Fetch(h, []byte("z"))
	require.NoError(t, err)
	require.Equal(t, "26", string(value))
}

// Foreach's callback may mutate the store it is scanning; the release/
// reacquire-and-reposition dance must tolerate a delete of the just-
// visited key without skipping or repeating later ones.
func TestForeachToleratesMutationDuringCallback(t *testing.T) {
	h, _ := newTestHandle(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, Store(h, []byte(k), []byte(k), nil))
	}

	var visited []string
	err := Foreach(h, nil, nil, func(key, value []byte) (bool, error) {
		visited = append(visited, string(key))
		if string(key) == "b" {
			require.NoError(t, Delete(h, []byte("c"), nil, false))
		}
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "d"}, visited)
}
