package gpu

import "encoding/binary"

// DimensionsSize is the byte size of the Dimensions uniform.
const DimensionsSize = 16

// Dimensions mirrors the kernel's uniform record. The trailing padding
// brings it to the 16-byte uniform alignment.
type Dimensions struct {
	Width  uint32
	Height uint32
	pad    [2]uint32
}

// NewDimensions returns the record for a width × height output.
func NewDimensions(width, height int) Dimensions {
	return Dimensions{Width: uint32(width), Height: uint32(height)}
}

// Bytes is the little-endian layout the kernel reads.
func (d Dimensions) Bytes() []byte {
	b := make([]byte, DimensionsSize)
	binary.LittleEndian.PutUint32(b[0:], d.Width)
	binary.LittleEndian.PutUint32(b[4:], d.Height)
	binary.LittleEndian.PutUint32(b[8:], d.pad[0])
	binary.LittleEndian.PutUint32(b[12:], d.pad[1])
	return b
}
