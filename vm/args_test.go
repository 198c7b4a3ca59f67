package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertArgsPlain(t *testing.T) {
	raw := EncodePlainArg([]byte("hello"))
	elems, err := ConvertArgs(raw)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("hello")}, elems)
}

func TestConvertArgsStructuredRoundTrip(t *testing.T) {
	in := [][]byte{[]byte("a"), nil, []byte("ccc")}
	raw := EncodeStructuredArgs(in)
	out, err := ConvertArgs(raw)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestConvertArgsRejectsEmptyBuffer(t *testing.T) {
	_, err := ConvertArgs(nil)
	require.Error(t, err)
}

func TestConvertArgsRejectsUnknownTag(t *testing.T) {
	_, err := ConvertArgs([]byte{0x02, 0x00})
	require.Error(t, err)
}

func TestConvertArgsStructuredTruncated(t *testing.T) {
	_, err := ConvertArgs([]byte{0x01, 0x05}) // claims 5 elements, has none
	require.Error(t, err)
}
