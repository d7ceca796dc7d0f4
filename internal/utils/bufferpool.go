// Package utils holds small shared helpers with no service dependencies.
package utils

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// bytebufferpool handles size-class management and anti-fragmentation for us;
// this wrapper only pins a process-wide pool instance.
var (
	pool     *bytebufferpool.Pool
	poolOnce sync.Once
)

func bufferPool() *bytebufferpool.Pool {
	poolOnce.Do(func() {
		pool = &bytebufferpool.Pool{}
	})
	return pool
}

// GetBuffer retrieves a buffer from the shared pool.
func GetBuffer() *bytebufferpool.ByteBuffer {
	return bufferPool().Get()
}

// PutBuffer returns a buffer to the shared pool.
func PutBuffer(buf *bytebufferpool.ByteBuffer) {
	bufferPool().Put(buf)
}
