package mapreduce

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoMapPartitionsByStableHash(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	input := filepath.Join(dir, "in.txt")
	require.NoError(t, s.WriteAll(input, []byte("a a b c")))

	artifact := "fake://wordcount"
	loader := newFakeLoader().withMapper(artifact, wordCountMapper)

	jobDir := filepath.Join(dir, "job")
	require.NoError(t, s.CreateDir(jobDir))

	resultDir, err := doMap(s, loader, jobDir, 0, input, artifact, 3)
	require.NoError(t, err)
	require.Equal(t, Join(jobDir, "0"), resultDir)

	seen := make(map[string][]string)
	for i := 0; i < 3; i++ {
		data, err := s.ReadAll(Join(resultDir, fmt.Sprintf("%d.json", i)))
		require.NoError(t, err)
		var part map[string][]string
		require.NoError(t, json.Unmarshal(data, &part))
		for k, v := range part {
			require.Equal(t, PartitionOf(k, 3), i, "key %q landed in wrong partition file", k)
			seen[k] = v
		}
	}
	require.Equal(t, []string{"1", "1"}, seen["a"])
	require.Equal(t, []string{"1"}, seen["b"])
	require.Equal(t, []string{"1"}, seen["c"])
}

func TestDoMapEmptyInputProducesEmptyPartitions(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	input := filepath.Join(dir, "in.txt")
	require.NoError(t, s.WriteAll(input, []byte{}))

	artifact := "fake://wordcount"
	loader := newFakeLoader().withMapper(artifact, wordCountMapper)

	jobDir := filepath.Join(dir, "job")
	require.NoError(t, s.CreateDir(jobDir))

	resultDir, err := doMap(s, loader, jobDir, 2, input, artifact, 4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		data, err := s.ReadAll(Join(resultDir, fmt.Sprintf("%d.json", i)))
		require.NoError(t, err)
		var part map[string][]string
		require.NoError(t, json.Unmarshal(data, &part))
		require.Empty(t, part)
	}
}

func TestRunMapperReportsFailureOnMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	input := filepath.Join(dir, "in.txt")
	require.NoError(t, s.WriteAll(input, []byte("a")))

	loader := newFakeLoader() // no Mapper registered
	jobDir := filepath.Join(dir, "job")
	require.NoError(t, s.CreateDir(jobDir))

	report := make(chan WorkerReport, 1)
	RunMapper(s, loader, jobDir, 0, input, "missing", 2, report)
	rep := <-report
	require.False(t, rep.Success)
	require.NotEmpty(t, rep.Payload)
}
