package packet

import "fmt"

// Buf is a single fragment of a packet's payload storage.
//
// Each fragment owns a backing array with a region of reserved
// headroom preceding the payload.  Link-layer code overlays frame
// headers onto the headroom in place, so a fragment can be placed on
// the wire without copying the payload.
type Buf struct {
	// Next links fragments into a packet's fragment chain.
	Next *Buf

	store  []byte
	off    int
	length int
}

// NewBuf allocates a fragment with capacity for size payload bytes
// and the requested headroom.
func NewBuf(size, headroom int) *Buf {
	return &Buf{
		store: make([]byte, headroom+size),
		off:   headroom,
	}
}

// NewBufFrom allocates a fragment with the requested headroom and
// copies b in as the payload.
func NewBufFrom(b []byte, headroom int) *Buf {
	buf := NewBuf(len(b), headroom)
	copy(buf.store[headroom:], b)
	buf.length = len(b)
	return buf
}

// Data returns the fragment's current payload bytes.
func (b *Buf) Data() []byte {
	return b.store[b.off : b.off+b.length]
}

// Len returns the fragment's current payload length.
func (b *Buf) Len() int {
	return b.length
}

// SetLen truncates or extends the payload length within the backing
// array's bounds.
func (b *Buf) SetLen(n int) error {
	if n < 0 || b.off+n > len(b.store) {
		return fmt.Errorf("length %d out of bounds for fragment of capacity %d", n, len(b.store)-b.off)
	}
	b.length = n
	return nil
}

// Headroom returns the number of reserved bytes preceding the payload.
func (b *Buf) Headroom() int {
	return b.off
}

// Pull advances the payload start by n bytes, growing the headroom.
// Used on receive to strip a link header after it has been parsed.
func (b *Buf) Pull(n int) error {
	if n < 0 || n > b.length {
		return fmt.Errorf("cannot pull %d bytes from fragment of length %d", n, b.length)
	}
	b.off += n
	b.length -= n
	return nil
}

// HeaderAt returns a view of size bytes starting reserve bytes before
// the payload, inside the fragment's headroom.  The returned slice
// aliases the backing array; writing to it writes the header in place.
func (b *Buf) HeaderAt(reserve, size int) ([]byte, error) {
	if reserve > b.off {
		return nil, fmt.Errorf("reserve %d exceeds headroom %d", reserve, b.off)
	}
	start := b.off - reserve
	if start+size > len(b.store) {
		return nil, fmt.Errorf("header of %d bytes at reserve %d exceeds fragment bounds", size, reserve)
	}
	return b.store[start : start+size], nil
}

// Frame returns the wire view of the fragment: reserve bytes of link
// header followed by the payload.
func (b *Buf) Frame(reserve int) ([]byte, error) {
	if reserve > b.off {
		return nil, fmt.Errorf("reserve %d exceeds headroom %d", reserve, b.off)
	}
	return b.store[b.off-reserve : b.off+b.length], nil
}

// Append copies p onto the end of the payload, extending its length.
func (b *Buf) Append(p []byte) error {
	if b.off+b.length+len(p) > len(b.store) {
		return fmt.Errorf("cannot append %d bytes to fragment with %d bytes free",
			len(p), len(b.store)-b.off-b.length)
	}
	copy(b.store[b.off+b.length:], p)
	b.length += len(p)
	return nil
}
