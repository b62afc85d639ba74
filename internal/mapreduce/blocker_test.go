package mapreduce

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBlockFileScenario1 pins down the boundary rule from §9's resolved
// open question using the exact six-line input named in scenario 1.
func TestBlockFileScenario1(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	src := filepath.Join(dir, "input.txt")
	lines := []string{"a a b", "b c", "a", "d d d", "", "c a"}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, s.WriteAll(src, []byte(content)))

	out := filepath.Join(dir, "shards")
	require.NoError(t, s.CreateDir(out))
	require.NoError(t, BlockFile(s, src, out, 4))

	// L=6, N=4: floor=1, remainder=2. Shards 0 and 1 get 2 lines, shards 2
	// and 3 get 1 line each.
	wantCounts := []int{2, 2, 1, 1}
	total := 0
	for i, want := range wantCounts {
		data, err := s.ReadAll(filepath.Join(out, fmt.Sprintf("%d.txt", i)))
		require.NoError(t, err)
		got := countLines(string(data))
		require.Equalf(t, want, got, "shard %d line count", i)
		total += got
	}
	require.Equal(t, len(lines), total)
}

func TestBlockFileZeroLines(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	src := filepath.Join(dir, "empty.txt")
	require.NoError(t, s.WriteAll(src, []byte{}))

	out := filepath.Join(dir, "shards")
	require.NoError(t, s.CreateDir(out))
	require.NoError(t, BlockFile(s, src, out, 3))

	for i := 0; i < 3; i++ {
		data, err := s.ReadAll(filepath.Join(out, fmt.Sprintf("%d.txt", i)))
		require.NoError(t, err)
		require.Empty(t, data)
	}
}

func TestBlockFilePreservesLineSet(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	src := filepath.Join(dir, "input")
	lines := []string{"one", "two", "three", "four", "five", "six", "seven"}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, s.WriteAll(src, []byte(content)))

	out := filepath.Join(dir, "shards")
	require.NoError(t, s.CreateDir(out))
	require.NoError(t, BlockFile(s, src, out, 3))

	var reassembled []string
	for i := 0; i < 3; i++ {
		data, err := s.ReadAll(filepath.Join(out, fmt.Sprintf("%d", i)))
		require.NoError(t, err)
		reassembled = append(reassembled, splitLines(string(data))...)
	}
	require.ElementsMatch(t, lines, reassembled)
}

func countLines(s string) int {
	return len(splitLines(s))
}

func splitLines(s string) []string {
	var lines []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			lines = append(lines, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
