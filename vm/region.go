package vm

import (
	"context"
	"unicode/utf16"

	"github.com/tetratelabs/wazero/api"
)

// Region is the guest-allocated descriptor contracts use to hand buffers
// across the linear-memory boundary: an offset, the capacity reserved at
// that offset, and the number of bytes actually in use.
type Region struct {
	Offset   uint32
	Capacity uint32
	Length   uint32
}

const regionSize = 12 // 3 little-endian uint32 fields, #[repr(C)] layout

// validateRegion enforces the three plausibility checks a Region read from
// guest memory must pass before any of its bytes are trusted.
func validateRegion(r Region) error {
	if r.Offset == 0 {
		return newCustomError("zero offset")
	}
	if r.Length > r.Capacity {
		return newCustomError("length > capacity")
	}
	if r.Capacity > ^uint32(0)-r.Offset {
		return newCustomError("out of range")
	}
	return nil
}

// getRegion dereferences the Region struct at ptr in guest memory.
func getRegion(mem api.Memory, ptr uint32) (Region, error) {
	buf, ok := mem.Read(ptr, regionSize)
	if !ok {
		return Region{}, newCustomError("could not dereference this pointer to a Region")
	}
	r := Region{
		Offset:   le32(buf[0:4]),
		Capacity: le32(buf[4:8]),
		Length:   le32(buf[8:12]),
	}
	if err := validateRegion(r); err != nil {
		return Region{}, err
	}
	return r, nil
}

// setRegion overwrites the Region struct at ptr with r.
func setRegion(mem api.Memory, ptr uint32, r Region) error {
	buf := make([]byte, regionSize)
	putLE32(buf[0:4], r.Offset)
	putLE32(buf[4:8], r.Capacity)
	putLE32(buf[8:12], r.Length)
	if !mem.Write(ptr, buf) {
		return newCustomError("could not dereference this pointer to a Region")
	}
	return nil
}

// ReadRegion reads the Region descriptor at ptr and returns a copy of the
// bytes it describes, rejecting regions that claim more than maxLength
// bytes of payload.
func ReadRegion(mem api.Memory, ptr uint32, maxLength int) ([]byte, error) {
	r, err := getRegion(mem, ptr)
	if err != nil {
		return nil, err
	}
	if int(r.Length) > maxLength {
		return nil, newCustomError("region_length_too_big: ptr=%d expected max = %d, actual=%d", ptr, maxLength, r.Length)
	}
	buf, ok := mem.Read(r.Offset, r.Length)
	if !ok {
		return nil, newCustomError("tried to access memory of region %+v out of bounds", r)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// MaybeReadRegion is ReadRegion but treats a nil pointer (0) as "absent"
// rather than an error, for optional arguments.
func MaybeReadRegion(mem api.Memory, ptr uint32, maxLength int) ([]byte, error) {
	if ptr == 0 {
		return nil, nil
	}
	return ReadRegion(mem, ptr, maxLength)
}

// WriteRegion writes data into the pre-allocated Region at ptr, updating
// its Length field. It errors if data does not fit within the Region's
// declared Capacity.
func WriteRegion(mem api.Memory, ptr uint32, data []byte) error {
	r, err := getRegion(mem, ptr)
	if err != nil {
		return err
	}
	if len(data) > int(r.Capacity) {
		return newCustomError("region_too_small")
	}
	if !mem.Write(r.Offset, data) {
		return newCustomError("tried to access memory of region %+v out of bounds", r)
	}
	r.Length = uint32(len(data))
	return setRegion(mem, ptr, r)
}

// ReadU32 reads a little-endian uint32 directly at ptr (not through a
// Region indirection), used for small scalar arguments.
func ReadU32(mem api.Memory, ptr uint32) (uint32, error) {
	v, ok := mem.ReadUint32Le(ptr)
	if !ok {
		return 0, newCustomError("could not dereference this pointer to u32")
	}
	return v, nil
}

// ReadUTF16 decodes a UTF-16LE string of byteLen bytes starting at ptr, the
// encoding AssemblyScript's toolchain uses for abort() message/filename
// arguments.
func ReadUTF16(mem api.Memory, ptr, byteLen uint32) (string, error) {
	buf, ok := mem.Read(ptr, byteLen)
	if !ok {
		return "", newCustomError("could not dereference this pointer to [u8]")
	}
	units := make([]uint16, len(buf)/2)
	for i := range units {
		units[i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// WriteToContract allocates len(data) bytes inside the guest (by calling
// its exported "allocate" function) and writes data into the returned
// Region, returning the Region pointer to hand back to the guest.
func WriteToContract(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		return 0, newCustomError("guest module does not export allocate")
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, wrapCustomError(err)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, newCustomError("target pointer is zero")
	}
	if err := WriteRegion(mod.Memory(), ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
