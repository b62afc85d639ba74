package mapreduce

import "hash/fnv"

// stableHash mirrors the teacher repo's ihash(): FNV-1a truncated to a
// non-negative int, stable across process restarts so a key always routes to
// the same reducer partition.
func stableHash(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	v := int(h.Sum32())
	if v < 0 {
		v = -v
	}
	return v
}

// PartitionOf returns the reducer index a key shuffles to: stable_hash(k) mod
// reducerNum. reducerNum must be >= 1.
func PartitionOf(key string, reducerNum int) int {
	return stableHash(key) % reducerNum
}
