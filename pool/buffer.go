package pool

import (
	"bytes"
	"sync"
)

var buffers = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// AcquireBuffer takes an empty buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	b := buffers.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// ReleaseBuffer returns b to the pool. Buffers that grew past 1 MiB are dropped.
func ReleaseBuffer(b *bytes.Buffer) {
	if b == nil || b.Cap() > 1<<20 {
		return
	}
	buffers.Put(b)
}
