package localstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type draft struct {
	CustomerID int64    `json:"customer_id"`
	Skus       []string `json:"skus"`
}

func TestDraftRoundTrip(t *testing.T) {
	s := openStore(t)

	var out draft
	ok, err := s.LoadDraft(1, &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveDraft(1, draft{CustomerID: 9, Skus: []string{"A", "B"}}))
	ok, err = s.LoadDraft(1, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), out.CustomerID)
	assert.Equal(t, []string{"A", "B"}, out.Skus)

	require.NoError(t, s.DeleteDraft(1))
	ok, err = s.LoadDraft(1, &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeDrafts(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.SaveDraft(1, draft{}))
	require.NoError(t, s.SaveDraft(2, draft{}))

	n, err := s.PurgeDrafts(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.PurgeDrafts(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDismissLowStockResetsNextDay(t *testing.T) {
	s := openStore(t)
	day1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	day2 := day1.Add(24 * time.Hour)

	require.NoError(t, s.DismissLowStock(3, 100, day1))
	require.NoError(t, s.DismissLowStock(3, 100, day1))
	require.NoError(t, s.DismissLowStock(3, 101, day1))

	dismissed, err := s.DismissedToday(3, day1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{100: true, 101: true}, dismissed)

	dismissed, err = s.DismissedToday(3, day2)
	require.NoError(t, err)
	assert.Empty(t, dismissed)

	require.NoError(t, s.DismissLowStock(3, 102, day2))
	dismissed, _ = s.DismissedToday(3, day2)
	assert.Equal(t, map[int64]bool{102: true}, dismissed)

	require.NoError(t, s.ClearDismissed(3))
	dismissed, _ = s.DismissedToday(3, day2)
	assert.Empty(t, dismissed)
}
