// Package buffer pools the scratch buffers used to drain decompression
// streams, so every transport message does not allocate a fresh read
// buffer.
package buffer

import "sync"

// size matches the drain read size of the decompression streams.
const size = 16 * 1024

var pool = sync.Pool{
	New: func() any {
		return make([]byte, size)
	},
}

// Get retrieves a scratch buffer from the pool.
func Get() []byte {
	return pool.Get().([]byte)
}

// Put returns a buffer to the pool. Undersized buffers are dropped.
func Put(buf []byte) {
	if cap(buf) >= size {
		pool.Put(buf[:cap(buf)])
	}
}
