package metadata

import "github.com/spaghettifunk/armada/engine/math"

const INSTANCE_RECORD_SIZE = 176

// InstanceStride is the record size rounded up to the 16 byte alignment the
// vertex input requires.
func InstanceStride() uint64 {
	return math.AlignUp(uint64(INSTANCE_RECORD_SIZE), 16)
}

/**
 * @brief The per-object data written to a mesh pool's instance buffer each frame.
 */
type InstanceRecord struct {
	Model math.Mat4
	/**
	 * @brief transpose(inverse(upper3x3(Model))) as a 4x4. Only the first three
	 * columns reach the GPU, each padded to a vec4.
	 */
	Normal        math.Mat4
	MaterialColor math.Vec4
	/** @brief rgb plus strength in w. */
	Emission math.Vec4
	/** @brief One bit per texture slot in element 0, the rest is reserved. */
	TextureFlags  [4]uint32
	MaterialIndex uint32
}

func EncodeInstanceRecord(dst []byte, r *InstanceRecord) error {
	if err := checkSize("instance record", dst, INSTANCE_RECORD_SIZE); err != nil {
		return err
	}
	c := NewCursor(dst).Mat4(r.Model)
	for col := 0; col < 3; col++ {
		c.Vec4(r.Normal.Col(col))
	}
	c.Vec4(r.MaterialColor).
		Vec4(r.Emission)
	for _, f := range r.TextureFlags {
		c.U32(f)
	}
	c.U32(r.MaterialIndex).Pad(12)
	return nil
}

func DecodeInstanceRecord(src []byte) (InstanceRecord, error) {
	var r InstanceRecord
	if err := checkSize("instance record", src, INSTANCE_RECORD_SIZE); err != nil {
		return r, err
	}
	rd := NewReader(src)
	r.Model = rd.Mat4()
	r.Normal = math.Mat4FromCols(rd.Vec4(), rd.Vec4(), rd.Vec4(), math.Vec4{0, 0, 0, 1})
	r.MaterialColor = rd.Vec4()
	r.Emission = rd.Vec4()
	for i := range r.TextureFlags {
		r.TextureFlags[i] = rd.U32()
	}
	r.MaterialIndex = rd.U32()
	return r, nil
}
