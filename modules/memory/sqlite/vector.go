package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/flemzord/mnemo/internal/memory"
)

// encodeVector packs v as little-endian float32 values.
func encodeVector(v memory.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte, dim int) (memory.Vector, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("sqlite: stored vector has %d bytes, want %d", len(b), 4*dim)
	}
	v := make(memory.Vector, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
