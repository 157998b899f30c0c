// internal/catalog/decode.go
package catalog

import (
	"errors"
	"fmt"
)

// Encoding names how raw register words map to a number.
type Encoding string

const (
	Int16  Encoding = "int16"
	Uint16 Encoding = "uint16"
	Int32  Encoding = "int32"
	Uint32 Encoding = "uint32"
)

// ErrShortResponse reports a register read that returned fewer words than the
// encoding requires.
var ErrShortResponse = errors.New("short register response")

// WordCount returns how many 16-bit registers the encoding occupies.
func (e Encoding) WordCount() uint16 {
	switch e {
	case Int32, Uint32:
		return 2
	default:
		return 1
	}
}

// Decode converts raw register words into a scaled physical value.
// 32-bit encodings combine two words big-endian (high<<16 | low); signed
// encodings are two's complement. Scale is applied after the sign conversion
// and cannot fail, so decoding only errors on a short word list.
func Decode(words []uint16, enc Encoding, scale float64) (float64, error) {
	if len(words) < int(enc.WordCount()) {
		return 0, fmt.Errorf("%w: got %d words, %s needs %d", ErrShortResponse, len(words), enc, enc.WordCount())
	}

	var raw int64
	switch enc {
	case Uint16:
		raw = int64(words[0])
	case Int16:
		raw = int64(words[0])
		if raw >= 0x8000 {
			raw -= 0x10000
		}
	case Int32, Uint32:
		raw = int64(words[0])<<16 | int64(words[1])
		if enc == Int32 && raw >= 0x80000000 {
			raw -= 0x100000000
		}
	default:
		return 0, fmt.Errorf("unknown encoding %q", enc)
	}

	if scale != 1.0 && scale != 0 {
		return float64(raw) * scale, nil
	}
	return float64(raw), nil
}
