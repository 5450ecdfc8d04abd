// Package pool holds sync.Pool backed builders for element paths and output
// buffers.
package pool

import (
	"strconv"
	"sync"
)

// PathBuilder builds dotted element paths such as "Patient.name[0].given".
type PathBuilder struct {
	buf []byte
}

var pathBuilders = sync.Pool{
	New: func() any {
		return &PathBuilder{buf: make([]byte, 0, 128)}
	},
}

// AcquirePathBuilder takes a cleared builder from the pool.
func AcquirePathBuilder() *PathBuilder {
	pb := pathBuilders.Get().(*PathBuilder)
	pb.buf = pb.buf[:0]
	return pb
}

// Release returns the builder to the pool.
func (b *PathBuilder) Release() {
	if b == nil || cap(b.buf) > 4096 {
		return
	}
	pathBuilders.Put(b)
}

// Field appends ".name", or just name on an empty path.
func (b *PathBuilder) Field(name string) *PathBuilder {
	if len(b.buf) > 0 {
		b.buf = append(b.buf, '.')
	}
	b.buf = append(b.buf, name...)
	return b
}

// Index appends "[i]".
func (b *PathBuilder) Index(i int) *PathBuilder {
	b.buf = append(b.buf, '[')
	b.buf = strconv.AppendInt(b.buf, int64(i), 10)
	b.buf = append(b.buf, ']')
	return b
}

func (b *PathBuilder) String() string {
	return string(b.buf)
}

// Child returns parent.name.
func Child(parent, name string) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.buf = append(pb.buf, parent...)
	return pb.Field(name).String()
}

// Item returns parent[i].
func Item(parent string, i int) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.buf = append(pb.buf, parent...)
	return pb.Index(i).String()
}

// Companion returns the path of the "_name" companion of parent.name.
func Companion(parent, name string) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.buf = append(pb.buf, parent...)
	return pb.Field("_" + name).String()
}
