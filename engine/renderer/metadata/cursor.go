package metadata

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/armada/engine/math"
)

// Cursor writes little-endian GPU data into a byte window. Out of range
// writes panic through the slice bounds check.
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) U32(v uint32) *Cursor {
	binary.LittleEndian.PutUint32(c.buf[c.off:c.off+4], v)
	c.off += 4
	return c
}

func (c *Cursor) F32(v float32) *Cursor {
	return c.U32(stdmath.Float32bits(v))
}

func (c *Cursor) Vec2(v math.Vec2) *Cursor {
	return c.F32(v[0]).F32(v[1])
}

func (c *Cursor) Vec3(v math.Vec3) *Cursor {
	return c.F32(v[0]).F32(v[1]).F32(v[2])
}

func (c *Cursor) Vec4(v math.Vec4) *Cursor {
	return c.F32(v[0]).F32(v[1]).F32(v[2]).F32(v[3])
}

// Mat4 writes column-major.
func (c *Cursor) Mat4(m math.Mat4) *Cursor {
	for _, v := range m {
		c.F32(v)
	}
	return c
}

func (c *Cursor) Pad(n int) *Cursor {
	clear(c.buf[c.off : c.off+n])
	c.off += n
	return c
}

// Reader is the decoding counterpart of Cursor.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) U32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v
}

func (r *Reader) F32() float32 {
	return stdmath.Float32frombits(r.U32())
}

func (r *Reader) Vec4() math.Vec4 {
	return math.Vec4{r.F32(), r.F32(), r.F32(), r.F32()}
}

func (r *Reader) Mat4() math.Mat4 {
	var m math.Mat4
	for i := range m {
		m[i] = r.F32()
	}
	return m
}

func (r *Reader) Skip(n int) {
	r.off += n
}

func checkSize(name string, dst []byte, size int) error {
	if len(dst) < size {
		return fmt.Errorf("%s needs %d bytes, got %d", name, size, len(dst))
	}
	return nil
}
