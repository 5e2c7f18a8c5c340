package bus

import (
	"fmt"
	"os"
)

// DefaultResetAddr is the 8088/8086 CS:IP reset vector (FFFF:0000),
// linearized. Boot images load at it by default in this harness (the
// config's image_origin and biu8088trace's -origin both default to it).
const DefaultResetAddr = 0xFFFF0

// Image is a flat boot image: raw bytes loaded verbatim at a linear
// address, the 8088/8086 equivalent of the teacher's ELF PT_LOAD segment
// but without the ELF container — there is no opcode semantics layer in
// this module to make sense of section headers or symbol tables.
type Image struct {
	// Origin is the linear address the image's first byte loads at.
	Origin uint32
	// Data is the raw file contents.
	Data []byte
}

// LoadImage reads a raw binary file from path as a boot image.
func LoadImage(path string, origin uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot image: %w", err)
	}

	return &Image{Origin: origin, Data: data}, nil
}

// LoadInto copies the image into b at its origin address.
func (img *Image) LoadInto(b *FlatBus) {
	b.Load(img.Origin, img.Data)
}
