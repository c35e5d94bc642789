package filestore

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteJSON_ReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dnc.json")

	require.NoError(t, AtomicWriteJSON(path, []string{"+15551230000"}))
	require.NoError(t, AtomicWriteJSON(path, []string{"+15551230001", "+15551230002"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []string{"+15551230001", "+15551230002"}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestAppendRecord_ConcurrentWritersKeepLinesWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.jsonl")

	type rec struct {
		N    int    `json:"n"`
		Body string `json:"body"`
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, AppendRecord(path, rec{N: n, Body: "payload"}))
		}(i)
	}
	wg.Wait()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	seen := map[int]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r rec
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		seen[r.N] = true
	}
	require.NoError(t, sc.Err())
	assert.Len(t, seen, 20)
}
