package frame_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"localipc/internal/frame"
)

func TestEncodeLayout(t *testing.T) {
	codec := frame.NewCodec(0)
	out, err := codec.Encode([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 3, 0x01, 0x02, 0x03}, out)
}

func TestEncodeEmptyPayload(t *testing.T) {
	codec := frame.NewCodec(0)
	out, err := codec.Encode(nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, out)

	payload, n, err := codec.Decode(out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Empty(t, payload)
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	codec := frame.NewCodec(8)
	_, err := codec.Encode(make([]byte, 9))
	require.ErrorIs(t, err, frame.ErrFrameTooLarge)

	out, err := codec.Encode(make([]byte, 8))
	require.NoError(t, err)
	require.Len(t, out, 12)
}

func TestDecodeIncompleteNeverInvalid(t *testing.T) {
	codec := frame.NewCodec(0)
	full, err := codec.Encode([]byte("hello world"))
	require.NoError(t, err)

	for i := 0; i < len(full); i++ {
		_, n, err := codec.Decode(full[:i])
		require.ErrorIs(t, err, frame.ErrIncomplete, "prefix of %d bytes", i)
		require.Zero(t, n)
	}
}

func TestDecodeConsumesOneFrame(t *testing.T) {
	codec := frame.NewCodec(0)
	a, _ := codec.Encode([]byte("first"))
	b, _ := codec.Encode([]byte("second"))
	buf := append(append([]byte{}, a...), b...)

	payload, n, err := codec.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, "first", string(payload))
	require.Equal(t, len(a), n)

	payload, n, err = codec.Decode(buf[n:])
	require.NoError(t, err)
	require.Equal(t, "second", string(payload))
	require.Equal(t, len(b), n)
}

func TestDecodeReturnsCopy(t *testing.T) {
	codec := frame.NewCodec(0)
	buf, _ := codec.Encode([]byte("abc"))
	payload, _, err := codec.Decode(buf)
	require.NoError(t, err)
	buf[frame.HeaderSize] = 'z'
	require.Equal(t, "abc", string(payload))
}

func TestDecodeTooLarge(t *testing.T) {
	codec := frame.NewCodec(16)
	header := binary.BigEndian.AppendUint32(nil, 17)
	_, _, err := codec.Decode(header)
	require.ErrorIs(t, err, frame.ErrFrameTooLarge)
}

func TestDecodeCorruptLength(t *testing.T) {
	codec := frame.NewCodec(0)
	header := binary.BigEndian.AppendUint32(nil, 0x80000001)
	_, _, err := codec.Decode(header)
	require.ErrorIs(t, err, frame.ErrCorruptFrame)
	require.False(t, errors.Is(err, frame.ErrFrameTooLarge))
}

func TestMaxPayloadDefaults(t *testing.T) {
	require.Equal(t, frame.DefaultMaxPayload, frame.Codec{}.MaxPayload())
	require.Equal(t, frame.DefaultMaxPayload, frame.NewCodec(-1).MaxPayload())
	require.Equal(t, 1024, frame.NewCodec(1024).MaxPayload())
}

func TestRoundTripProperty(t *testing.T) {
	codec := frame.NewCodec(4096)
	rapid.Check(t, func(rt *rapid.T) {
		payloads := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 4096), 1, 8).Draw(rt, "payloads")
		split := rapid.IntRange(1, 64).Draw(rt, "split")

		var stream []byte
		for _, p := range payloads {
			var err error
			stream, err = codec.AppendEncode(stream, p)
			if err != nil {
				rt.Fatalf("encode: %v", err)
			}
		}

		// feed the stream in arbitrary chunks, as a socket read would
		var acc []byte
		var got [][]byte
		for off := 0; off < len(stream); off += split {
			end := min(off+split, len(stream))
			acc = append(acc, stream[off:end]...)
			for {
				payload, n, err := codec.Decode(acc)
				if errors.Is(err, frame.ErrIncomplete) {
					break
				}
				if err != nil {
					rt.Fatalf("decode: %v", err)
				}
				got = append(got, payload)
				acc = acc[n:]
			}
		}
		if len(acc) != 0 {
			rt.Fatalf("left %d undecoded bytes", len(acc))
		}
		if len(got) != len(payloads) {
			rt.Fatalf("decoded %d frames, want %d", len(got), len(payloads))
		}
		for i := range payloads {
			if !bytes.Equal(got[i], payloads[i]) {
				rt.Fatalf("frame %d mismatch", i)
			}
		}
	})
}
