package testsupport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path (and its parents) holding size bytes of filler. A
// size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteEpisodes creates count episode files named "<prefix> - S01E<nn>.mkv"
// in dir and returns their paths in name order.
func WriteEpisodes(t testing.TB, dir, prefix string, count int, size int64) []string {
	t.Helper()

	paths := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s - S01E%02d.mkv", prefix, i))
		WriteFile(t, path, size)
		paths = append(paths, path)
	}
	return paths
}
