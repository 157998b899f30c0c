package catalog

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeUint16Identity(t *testing.T) {
	for _, w := range []uint16{0, 1, 0x7FFF, 0x8000, 0xFFFF} {
		got, err := Decode([]uint16{w}, Uint16, 1.0)
		if err != nil {
			t.Fatalf("Decode(%#x) err=%v", w, err)
		}
		if got != float64(w) {
			t.Fatalf("Decode(%#x) = %v, want %v", w, got, float64(w))
		}
	}
}

func TestDecodeInt16Sign(t *testing.T) {
	cases := []struct {
		word uint16
		want float64
	}{
		{0, 0},
		{0x7FFF, 32767},
		{0x8000, -32768},
		{0xFFFF, -1},
		{0xFF9A, -102},
	}
	for _, c := range cases {
		got, err := Decode([]uint16{c.word}, Int16, 1.0)
		if err != nil {
			t.Fatalf("Decode(%#x) err=%v", c.word, err)
		}
		if got != c.want {
			t.Fatalf("Decode(%#x) = %v, want %v", c.word, got, c.want)
		}
		// Congruence mod 2^16 and range check
		if got < -32768 || got > 32767 {
			t.Fatalf("Decode(%#x) = %v out of int16 range", c.word, got)
		}
		if math.Mod(got-float64(c.word), 65536) != 0 {
			t.Fatalf("Decode(%#x) = %v not congruent mod 65536", c.word, got)
		}
	}
}

func TestDecodeInt32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 3200, -3200, math.MaxInt32, math.MinInt32} {
		words := []uint16{uint16(uint32(v) >> 16), uint16(uint32(v))}
		got, err := Decode(words, Int32, 1.0)
		if err != nil {
			t.Fatalf("Decode(%d) err=%v", v, err)
		}
		if got != float64(v) {
			t.Fatalf("Decode(%d) = %v", v, got)
		}
	}
}

func TestDecodeUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0x8000_0000, 0xFFFF_FFFF} {
		words := []uint16{uint16(v >> 16), uint16(v)}
		got, err := Decode(words, Uint32, 1.0)
		if err != nil {
			t.Fatalf("Decode(%d) err=%v", v, err)
		}
		if got != float64(v) {
			t.Fatalf("Decode(%d) = %v", v, got)
		}
	}
}

func TestDecodeScale(t *testing.T) {
	got, err := Decode([]uint16{483}, Uint16, 0.1)
	if err != nil {
		t.Fatalf("Decode err=%v", err)
	}
	if math.Abs(got-48.3) > 1e-9 {
		t.Fatalf("Decode scaled = %v, want ~48.3", got)
	}
}

func TestDecodeShortResponse(t *testing.T) {
	if _, err := Decode([]uint16{1}, Int32, 1.0); !errors.Is(err, ErrShortResponse) {
		t.Fatalf("expected ErrShortResponse, got %v", err)
	}
	if _, err := Decode(nil, Uint16, 1.0); !errors.Is(err, ErrShortResponse) {
		t.Fatalf("expected ErrShortResponse for empty input, got %v", err)
	}
}

func TestWordCount(t *testing.T) {
	if Int16.WordCount() != 1 || Uint16.WordCount() != 1 {
		t.Fatal("16-bit encodings must need 1 word")
	}
	if Int32.WordCount() != 2 || Uint32.WordCount() != 2 {
		t.Fatal("32-bit encodings must need 2 words")
	}
}
