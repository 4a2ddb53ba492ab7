package artifact

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRunScoped(t *testing.T) {
	root := filepath.Join(t.TempDir(), "output")
	s, err := NewStore(root, true, false)
	require.NoError(t, err)
	assert.True(t, s.RunScoped())
	assert.True(t, filepath.IsAbs(s.Root()))

	a, err := s.Acquire("run-a")
	require.NoError(t, err)
	b, err := s.Acquire("run-b")
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir, b.Dir)
	assert.Equal(t, filepath.Join(s.Root(), RunsDirName, "run-a"), a.Dir)

	writeFile(t, a.Dir, "chart.png", "a")
	require.NoError(t, a.Release())
	require.NoError(t, a.Release(), "release is idempotent")

	_, err = os.Stat(a.Dir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(b.Dir)
	assert.NoError(t, err, "releasing one run leaves the other alone")
	require.NoError(t, b.Release())

	t.Run("DuplicateRunID", func(t *testing.T) {
		c, err := s.Acquire("run-c")
		require.NoError(t, err)
		defer c.Release()
		_, err = s.Acquire("run-c")
		require.Error(t, err)
	})

	t.Run("InvalidRunID", func(t *testing.T) {
		for _, id := range []string{"", "..", "a/b"} {
			_, err := s.Acquire(id)
			assert.Error(t, err, id)
		}
	})

	t.Run("WorldWritable", func(t *testing.T) {
		ws, err := NewStore(filepath.Join(t.TempDir(), "ww"), true, true)
		require.NoError(t, err)
		sc, err := ws.Acquire("run-w")
		require.NoError(t, err)
		defer sc.Release()

		info, err := os.Stat(sc.Dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o777), info.Mode().Perm())
	})
}

func TestStoreShared(t *testing.T) {
	s, err := NewStore(t.TempDir(), false, false)
	require.NoError(t, err)

	// Residue from a crashed process.
	shared := filepath.Join(s.Root(), SharedDirName)
	require.NoError(t, os.MkdirAll(shared, 0o755))
	writeFile(t, shared, "chart.png", "stale")

	sc, err := s.Acquire("ignored")
	require.NoError(t, err)
	assert.Equal(t, shared, sc.Dir)
	assert.Empty(t, listDir(t, shared), "stale files are purged on acquire")

	t.Run("Exclusive", func(t *testing.T) {
		var inside atomic.Int32
		var wg sync.WaitGroup

		acquired := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			other, err := s.Acquire("second")
			if !assert.NoError(t, err) {
				return
			}
			inside.Add(1)
			close(acquired)
			_ = other.Release()
		}()

		select {
		case <-acquired:
			t.Fatal("second run entered while the first held the shared dir")
		case <-time.After(30 * time.Millisecond):
		}
		assert.Equal(t, int32(0), inside.Load())

		writeFile(t, sc.Dir, "chart.png", "first")
		require.NoError(t, sc.Release())
		wg.Wait()
		assert.Equal(t, int32(1), inside.Load())
		assert.Empty(t, listDir(t, shared))
	})
}

func TestStoreOpen(t *testing.T) {
	s, err := NewStore(t.TempDir(), true, false)
	require.NoError(t, err)
	writeFile(t, s.Root(), testUUID+".png", "PNG")

	f, err := s.Open(testUUID + ".png")
	require.NoError(t, err)
	f.Close()

	_, err = s.Open(RunsDirName)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStoreSweepRuns(t *testing.T) {
	s, err := NewStore(t.TempDir(), true, false)
	require.NoError(t, err)

	for _, id := range []string{"old-1", "old-2"} {
		_, err := s.Acquire(id)
		require.NoError(t, err)
	}

	n, err := s.SweepRuns()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, listDir(t, filepath.Join(s.Root(), RunsDirName)))
}
