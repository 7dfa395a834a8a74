package uploadsession

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestInitValidation(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Init("", 10, 2, "ds1", "")
	require.Error(t, err)
	_, err = m.Init("f.csv", 0, 2, "ds1", "")
	require.Error(t, err)
	_, err = m.Init("f.csv", 10, 0, "ds1", "")
	require.Error(t, err)
	_, err = m.Init("f.csv", 10, 2, "", "")
	require.Error(t, err)

	s, err := m.Init("f.csv", 10, 2, "ds1", "")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, 1, m.Len())
}

func TestReassemblyOutOfOrderOddSizes(t *testing.T) {
	m := newTestManager(t)
	parts := []string{"alpha-", "b", "gamma-gamma-", "zz"}
	var full strings.Builder
	for _, p := range parts {
		full.WriteString(p)
	}

	s, err := m.Init("ledger.csv", int64(full.Len()), len(parts), "ds1", "")
	require.NoError(t, err)

	// Deliver chunks out of order.
	for _, i := range []int{2, 0, 3, 1} {
		received, total, err := m.ReceiveChunk(s.ID, i, strings.NewReader(parts[i]))
		require.NoError(t, err)
		require.Equal(t, len(parts), total)
		require.Positive(t, received)
	}

	path, err := m.Complete(s.ID)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, full.String(), string(got))
	require.True(t, strings.HasSuffix(path, ".csv"))
	require.Equal(t, 0, m.Len())
}

func TestChunkRetryOverwrites(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Init("f.csv", 6, 2, "ds1", "")
	require.NoError(t, err)

	_, _, err = m.ReceiveChunk(s.ID, 0, strings.NewReader("WRONG!"))
	require.NoError(t, err)
	_, _, err = m.ReceiveChunk(s.ID, 0, strings.NewReader("abc"))
	require.NoError(t, err)
	received, _, err := m.ReceiveChunk(s.ID, 1, strings.NewReader("def"))
	require.NoError(t, err)
	require.Equal(t, 2, received)

	path, err := m.Complete(s.ID)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(got))
}

func TestChunkIndexOutOfRange(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Init("f.csv", 3, 2, "ds1", "")
	require.NoError(t, err)

	_, _, err = m.ReceiveChunk(s.ID, -1, strings.NewReader("x"))
	require.ErrorIs(t, err, ErrChunkIndex)
	_, _, err = m.ReceiveChunk(s.ID, 2, strings.NewReader("x"))
	require.ErrorIs(t, err, ErrChunkIndex)
}

func TestCompleteIncomplete(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Init("f.csv", 6, 3, "ds1", "")
	require.NoError(t, err)
	_, _, err = m.ReceiveChunk(s.ID, 0, strings.NewReader("ab"))
	require.NoError(t, err)

	_, err = m.Complete(s.ID)
	require.ErrorIs(t, err, ErrIncompleteUpload)

	// An incomplete completion attempt does not consume the session.
	_, _, err = m.ReceiveChunk(s.ID, 1, strings.NewReader("cd"))
	require.NoError(t, err)
}

func TestCompleteRunsAtMostOnce(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Init("f.csv", 2, 1, "ds1", "")
	require.NoError(t, err)
	_, _, err = m.ReceiveChunk(s.ID, 0, strings.NewReader("ok"))
	require.NoError(t, err)

	var mu sync.Mutex
	var paths []string
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, err := m.Complete(s.ID); err == nil {
				mu.Lock()
				paths = append(paths, p)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, paths, 1)
}

func TestChunkRetriesRacingCompleteNeverTearAssembly(t *testing.T) {
	m := newTestManager(t)
	for iter := 0; iter < 25; iter++ {
		parts := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}
		s, err := m.Init("ledger.csv", 24, len(parts), "ds1", "")
		require.NoError(t, err)
		for i, p := range parts {
			_, _, err := m.ReceiveChunk(s.ID, i, strings.NewReader(p))
			require.NoError(t, err)
		}

		// Hammer chunk 0 with retries while Complete assembles. A retry
		// either lands whole before consumption or is rejected; the
		// assembled file must never carry a torn or truncated chunk.
		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 5; j++ {
					m.ReceiveChunk(s.ID, 0, strings.NewReader("xxxxxxxx"))
				}
			}()
		}
		var outPath string
		var completeErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outPath, completeErr = m.Complete(s.ID)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, completeErr)
		got, err := os.ReadFile(outPath)
		require.NoError(t, err)
		require.Len(t, got, 24)
		first := string(got[:8])
		require.True(t, first == "aaaaaaaa" || first == "xxxxxxxx", "torn chunk: %q", first)
		require.Equal(t, "bbbbbbbbcccccccc", string(got[8:]))
	}
}

func TestCompleteUnknownSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Complete("nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, _, err = m.ReceiveChunk("nope", 0, strings.NewReader("x"))
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChecksumVerification(t *testing.T) {
	m := newTestManager(t)
	content := []byte("hello,world\n1,2\n")
	sum := sha256.Sum256(content)

	s, err := m.Init("f.csv", int64(len(content)), 1, "ds1", hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	_, _, err = m.ReceiveChunk(s.ID, 0, bytes.NewReader(content))
	require.NoError(t, err)
	path, err := m.Complete(s.ID)
	require.NoError(t, err)
	require.FileExists(t, path)

	s2, err := m.Init("f.csv", int64(len(content)), 1, "ds2", strings.Repeat("0", 64))
	require.NoError(t, err)
	_, _, err = m.ReceiveChunk(s2.ID, 0, bytes.NewReader(content))
	require.NoError(t, err)
	_, err = m.Complete(s2.ID)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestSweepReclaimsIdleSessions(t *testing.T) {
	m := newTestManager(t)
	stale, err := m.Init("old.csv", 10, 2, "ds-old", "")
	require.NoError(t, err)
	_, err = m.Init("new.csv", 10, 2, "ds-new", "")
	require.NoError(t, err)

	stale.mu.Lock()
	stale.lastActivity = time.Now().Add(-3 * time.Hour)
	stale.mu.Unlock()

	var reclaimed []string
	n := m.Sweep(2*time.Hour, func(datasetID string) {
		reclaimed = append(reclaimed, datasetID)
	})
	require.Equal(t, 1, n)
	require.Equal(t, []string{"ds-old"}, reclaimed)
	require.Equal(t, 1, m.Len())
	require.NoDirExists(t, stale.stagingDir)
}
