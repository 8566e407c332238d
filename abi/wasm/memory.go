package wasm

import (
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/text/encoding/unicode"
)

// Guest memory limits, in 64KiB pages.
const (
	minPages = 256  // 16 MiB
	maxPages = 4096 // 256 MiB
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// memoryModule returns a minimal wasm binary equivalent to
//
//	(module (memory (export "memory") min max))
//
// wazero host modules cannot export memory, so the env import is served by
// this module instead.
func memoryModule(min, max uint32) []byte {
	limits := append([]byte{0x01}, leb128(min)...)
	limits = append(limits, leb128(max)...)

	mem := append([]byte{0x01}, limits...)
	exp := []byte{0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00}

	b := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	b = append(b, 0x05, byte(len(mem)))
	b = append(b, mem...)
	b = append(b, 0x07, byte(len(exp)))
	return append(b, exp...)
}

func leb128(v uint32) []byte {
	var out []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		out = append(out, c)
		if v == 0 {
			return out
		}
	}
}

// memory provides typed access to guest linear memory.
type memory struct {
	mem api.Memory
}

func (m *memory) read(ptr, n uint32) ([]byte, bool) {
	if n == 0 {
		return nil, true
	}
	return m.mem.Read(ptr, n)
}

func (m *memory) write(ptr uint32, data []byte) bool {
	return m.mem.Write(ptr, data)
}

func (m *memory) u32(ptr uint32) (uint32, bool) {
	return m.mem.ReadUint32Le(ptr)
}

func (m *memory) putU32(ptr, v uint32) bool {
	return m.mem.WriteUint32Le(ptr, v)
}

func (m *memory) u8(ptr uint32) (byte, bool) {
	return m.mem.ReadByte(ptr)
}

func (m *memory) f64(ptr uint32) (float64, bool) {
	return m.mem.ReadFloat64Le(ptr)
}

// tokens reads n consecutive 32-bit handles.
func (m *memory) tokens(ptr, n uint32) ([]uint32, bool) {
	raw, ok := m.read(ptr, n*4)
	if !ok {
		return nil, false
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, true
}

// utf16 decodes n UTF-16 code units at ptr.
func (m *memory) utf16(ptr, n uint32) (string, error) {
	raw, ok := m.read(ptr, n*2)
	if !ok {
		return "", fmt.Errorf("read %d code units at 0x%x: out of range", n, ptr)
	}
	out, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// wstring decodes a null-terminated UTF-16 string at ptr.
func (m *memory) wstring(ptr uint32) (string, error) {
	var n uint32
	for end := m.mem.Size(); ptr+n*2+1 < end; n++ {
		lo, _ := m.mem.ReadByte(ptr + n*2)
		hi, _ := m.mem.ReadByte(ptr + n*2 + 1)
		if lo == 0 && hi == 0 {
			return m.utf16(ptr, n)
		}
	}
	return "", fmt.Errorf("unterminated string at 0x%x", ptr)
}

// encodeUTF16 returns s as UTF-16LE and its length in code units.
func encodeUTF16(s string) ([]byte, uint32, error) {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, 0, err
	}
	return b, uint32(len(b) / 2), nil
}
