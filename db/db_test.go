package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newSubmission(query string) *Submission {
	return &Submission{
		UserID:   42,
		Username: "someone",
		Query:    query,
		FileID:   "file-" + query,
		Title:    "Title " + query,
		Artist:   "Artist",
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", "whatever")
	require.Error(t, err)
}

func TestCreateAndGet(t *testing.T) {
	store := testStore(t)

	id, err := store.Create(newSubmission("muse"))
	require.NoError(t, err)

	sub, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "muse", sub.Query)
	assert.Equal(t, "file-muse", sub.FileID)
	assert.Equal(t, StatusPending, sub.Status)
}

func TestIDsMonotonic(t *testing.T) {
	store := testStore(t)

	first, err := store.Create(newSubmission("a"))
	require.NoError(t, err)
	second, err := store.Create(newSubmission("b"))
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestGetNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusOnce(t *testing.T) {
	store := testStore(t)
	id, err := store.Create(newSubmission("q"))
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(id, StatusApproved))

	sub, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, sub.Status)

	// A second decision is a no-op, whatever its direction.
	assert.ErrorIs(t, store.SetStatus(id, StatusRejected), ErrNotPending)
	assert.ErrorIs(t, store.SetStatus(id, StatusApproved), ErrNotPending)

	sub, err = store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, sub.Status, "status unchanged by rejected decisions")
}

func TestSetStatusValidation(t *testing.T) {
	store := testStore(t)
	id, err := store.Create(newSubmission("q"))
	require.NoError(t, err)

	require.Error(t, store.SetStatus(id, "banana"))
	assert.ErrorIs(t, store.SetStatus(999, StatusApproved), ErrNotFound)
}

func TestGetCounts(t *testing.T) {
	store := testStore(t)

	a, _ := store.Create(newSubmission("a"))
	b, _ := store.Create(newSubmission("b"))
	_, err := store.Create(newSubmission("c"))
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(a, StatusApproved))
	require.NoError(t, store.SetStatus(b, StatusRejected))

	counts, err := store.GetCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Approved)
	assert.Equal(t, 1, counts.Rejected)
}
