package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "distributor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordThenPendingRoundTrips(t *testing.T) {
	j := openTest(t)

	require.NoError(t, j.Record(10, map[int]string{1: "job.10.1", 2: "job.10.2"}))

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Contains(t, pending, int64(10))
	assert.Equal(t, map[int]string{1: "job.10.1", 2: "job.10.2"}, pending[10])
}

func TestClearRemovesEntry(t *testing.T) {
	j := openTest(t)
	require.NoError(t, j.Record(10, map[int]string{1: "job.10.1"}))

	require.NoError(t, j.Clear(10))

	pending, err := j.Pending()
	require.NoError(t, err)
	assert.NotContains(t, pending, int64(10))
}

func TestPendingSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distributor.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(42, map[int]string{0: "job.42.0"}))
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.Pending()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "job.42.0"}, pending[42])
}

func TestPendingEmptyWhenNothingRecorded(t *testing.T) {
	j := openTest(t)
	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}
