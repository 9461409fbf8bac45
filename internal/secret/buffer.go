// Package secret provides a zeroizing owning container for key-material
// bytes. A Buffer is backed by a memguard LockedBuffer: the underlying pages
// are mlocked and guarded, and Wipe overwrites them with zero before release.
package secret

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Buffer owns a byte slice that must never be copied or logged. All reads go
// through Bytes, which returns a slice into the guarded pages — callers must
// not retain it past the next Wipe.
type Buffer struct {
	lb *memguard.LockedBuffer
}

// New copies src into a freshly allocated locked buffer and zeroes src.
// The caller's copy of src is destroyed as a side effect; callers must not
// reuse src afterwards.
func New(src []byte) *Buffer {
	lb := memguard.NewBufferFromBytes(src)
	return &Buffer{lb: lb}
}

// NewZeroed allocates a locked buffer of the given length, zero-filled.
func NewZeroed(length int) *Buffer {
	return &Buffer{lb: memguard.NewBuffer(length)}
}

// Bytes returns a read-only view of the buffer's contents. Returns nil if
// the buffer has been wiped.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.lb == nil || b.lb.IsDestroyed() {
		return nil
	}
	return b.lb.Bytes()
}

// Len reports the buffer's length, or 0 if wiped.
func (b *Buffer) Len() int {
	if b == nil || b.lb == nil || b.lb.IsDestroyed() {
		return 0
	}
	return b.lb.Size()
}

// Wipe overwrites the buffer with zero and releases its locked pages. Safe
// to call multiple times and on a nil Buffer.
func (b *Buffer) Wipe() {
	if b == nil || b.lb == nil {
		return
	}
	b.lb.Destroy()
}

// IsWiped reports whether Wipe has already run.
func (b *Buffer) IsWiped() bool {
	return b == nil || b.lb == nil || b.lb.IsDestroyed()
}

// String never exposes contents, even under %v/%+v — deliberately avoids
// satisfying fmt.Stringer with real data so accidental logging doesn't leak
// key material.
func (b *Buffer) String() string {
	return fmt.Sprintf("secret.Buffer{len=%d, wiped=%v}", b.Len(), b.IsWiped())
}
