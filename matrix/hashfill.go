package matrix

import (
	"encoding/binary"
	"hash/fnv"
)

// Hashed fills a matrix with values in [0, 1) derived from a hash of the
// seed and each element index. It is deterministic and meant for test
// fixtures, not as a random distribution.
func Hashed(size int, seed uint64) Matrix {
	m := New(size)
	var key [16]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	for i := range m.Data {
		binary.LittleEndian.PutUint64(key[8:], uint64(i))
		h := fnv.New64a()
		h.Write(key[:])
		m.Data[i] = float32(h.Sum64()%1000) / 1000
	}
	return m
}
