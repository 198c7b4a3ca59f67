package vm

// Argument wire tags. A caller sends either one opaque blob (plain) or a
// tagged list of opaque elements, any of which may be nil.
const (
	argsPlainFormat     = 0x00
	argsStructuredFormat = 0x01
)

// ConvertArgs decodes a tagged argument buffer into its element list. The
// plain format wraps the remaining bytes as a single element; the
// structured format is a count followed by per-element (is_nil, length,
// bytes) records, the bespoke stand-in this port uses in place of the
// external FFI encoding the originating engine used here (see
// SPEC_FULL.md's outer-boundary note).
func ConvertArgs(raw []byte) ([][]byte, error) {
	if len(raw) == 0 {
		return nil, newCustomError("failed to parse arguments")
	}
	tag, body := raw[0], raw[1:]
	switch tag {
	case argsPlainFormat:
		return [][]byte{body}, nil
	case argsStructuredFormat:
		return decodeStructuredArgs(body)
	default:
		return nil, newCustomError("unknown format of args")
	}
}

func decodeStructuredArgs(body []byte) ([][]byte, error) {
	count, n, err := readULEB(body, 0)
	if err != nil {
		return nil, err
	}
	pos := n
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos >= len(body) {
			return nil, newCustomError("failed to parse arguments")
		}
		isNil := body[pos] != 0
		pos++
		if isNil {
			out = append(out, nil)
			continue
		}
		length, n, err := readULEB(body, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if pos+int(length) > len(body) {
			return nil, newCustomError("failed to parse arguments")
		}
		out = append(out, body[pos:pos+int(length)])
		pos += int(length)
	}
	return out, nil
}

// EncodeStructuredArgs is ConvertArgs' inverse for the structured format,
// used by callers (tests, the devtool CLI) constructing a multi-argument
// call buffer.
func EncodeStructuredArgs(elems [][]byte) []byte {
	out := []byte{argsStructuredFormat}
	out = append(out, uleb(uint32(len(elems)))...)
	for _, e := range elems {
		if e == nil {
			out = append(out, 1)
			continue
		}
		out = append(out, 0)
		out = append(out, uleb(uint32(len(e)))...)
		out = append(out, e...)
	}
	return out
}

// EncodePlainArg wraps a single argument buffer in the plain-format tag.
func EncodePlainArg(arg []byte) []byte {
	return append([]byte{argsPlainFormat}, arg...)
}

func readULEB(b []byte, pos int) (uint32, int, error) {
	var result uint32
	var shift uint
	n := 0
	for {
		if pos+n >= len(b) {
			return 0, 0, newCustomError("failed to parse arguments")
		}
		byt := b[pos+n]
		result |= uint32(byt&0x7f) << shift
		n++
		if byt&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, n, nil
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}
