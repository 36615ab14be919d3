package render

import (
	"errors"

	"github.com/gogpu/gg"
)

// ErrBufferBusy means the next buffer in the rotation is still owned by a
// pass.
var ErrBufferBusy = errors.New("render buffer busy")

// BufferPool rotates a fixed number of frame buffers. A buffer is owned by
// one pass from Acquire until Release.
type BufferPool struct {
	bufs  []*gg.Pixmap
	owner []uint64
	next  int
	w, h  int
}

// NewBufferPool returns n buffers, at least two.
func NewBufferPool(n int) *BufferPool {
	n = max(n, 2)
	return &BufferPool{bufs: make([]*gg.Pixmap, n), owner: make([]uint64, n)}
}

// Len reports the number of buffers in the rotation.
func (b *BufferPool) Len() int { return len(b.bufs) }

// Resize sets the buffer size. Buffers are reallocated lazily on Acquire so
// a buffer on screen stays intact until it is reused.
func (b *BufferPool) Resize(w, h int) {
	b.w, b.h = max(w, 1), max(h, 1)
}

// Acquire hands the next buffer in the rotation to pass.
func (b *BufferPool) Acquire(pass uint64) (int, *gg.Pixmap, error) {
	i := b.next
	if b.owner[i] != 0 {
		return -1, nil, ErrBufferBusy
	}
	if pm := b.bufs[i]; pm == nil || pm.Width() != b.w || pm.Height() != b.h {
		b.bufs[i] = gg.NewPixmap(max(b.w, 1), max(b.h, 1))
	}
	b.owner[i] = pass
	b.next = (i + 1) % len(b.bufs)
	return i, b.bufs[i], nil
}

// Release returns buffer i to the rotation if pass still owns it.
func (b *BufferPool) Release(i int, pass uint64) {
	if i >= 0 && i < len(b.owner) && b.owner[i] == pass {
		b.owner[i] = 0
	}
}

// Owner reports the pass owning buffer i, or zero.
func (b *BufferPool) Owner(i int) uint64 { return b.owner[i] }

// Drop forgets every buffer and ownership.
func (b *BufferPool) Drop() {
	for i := range b.bufs {
		b.bufs[i] = nil
		b.owner[i] = 0
	}
	b.next = 0
}
