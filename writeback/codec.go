package writeback

import (
	"encoding/binary"
)

// BytesEncoder passes values through unchanged.
type BytesEncoder struct{}

func (BytesEncoder) Encode(v []byte) ([]byte, error) {
	return v, nil
}

// StringEncoder encodes strings as their bytes.
type StringEncoder struct{}

func (StringEncoder) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

// Uint64Encoder encodes values as 8 big-endian bytes, matching the sink's
// key encoding.
type Uint64Encoder struct{}

func (Uint64Encoder) Encode(v uint64) ([]byte, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:], nil
}
