package wasm

import "github.com/6over3/jsrt/abi"

// frame collects the guest allocations of one call so they can be freed
// together. Frames nest freely, which keeps callbacks that re-enter the
// surface from clobbering an outer call's arguments.
type frame struct {
	s    *Surface
	ptrs []uint32
	code abi.ErrorCode
}

func (s *Surface) frame() *frame {
	return &frame{s: s}
}

// alloc returns n zeroed guest bytes. On failure the frame remembers
// OutOfMemory and alloc returns 0.
func (f *frame) alloc(n uint32) uint32 {
	if f.code != abi.NoError {
		return 0
	}
	if n == 0 {
		n = 1
	}
	malloc := f.s.export("malloc")
	if malloc == nil {
		f.code = abi.ErrorNotImplemented
		return 0
	}
	res, err := malloc.Call(f.s.ctx, uint64(n))
	if err != nil || len(res) == 0 || uint32(res[0]) == 0 {
		f.s.log.Debug("guest allocation failed")
		f.code = abi.ErrorOutOfMemory
		return 0
	}
	ptr := uint32(res[0])
	f.s.mem.write(ptr, make([]byte, n))
	f.ptrs = append(f.ptrs, ptr)
	return ptr
}

// out allocates n 8-byte out-parameter slots.
func (f *frame) out(n uint32) uint32 {
	return f.alloc(8 * n)
}

func (f *frame) bytes(b []byte) uint32 {
	ptr := f.alloc(uint32(len(b)))
	if ptr != 0 {
		f.s.mem.write(ptr, b)
	}
	return ptr
}

// wstring copies s into the guest as null-terminated UTF-16 and returns
// the pointer and length in code units.
func (f *frame) wstring(s string) (uint32, uint32) {
	b, n, err := encodeUTF16(s)
	if err != nil {
		if f.code == abi.NoError {
			f.code = abi.ErrorInvalidArgument
		}
		return 0, 0
	}
	return f.bytes(append(b, 0, 0)), n
}

// tokens copies handles into a guest array.
func (f *frame) tokens(refs []abi.ValueRef) uint32 {
	if len(refs) == 0 {
		return 0
	}
	ptr := f.alloc(uint32(4 * len(refs)))
	for i, r := range refs {
		if ptr != 0 {
			f.s.mem.putU32(ptr+uint32(4*i), uint32(r))
		}
	}
	return ptr
}

// keep detaches ptr from the frame so release leaves it allocated.
func (f *frame) keep(ptr uint32) {
	for i, p := range f.ptrs {
		if p == ptr {
			f.ptrs = append(f.ptrs[:i], f.ptrs[i+1:]...)
			return
		}
	}
}

func (f *frame) release() {
	free := f.s.export("free")
	if free == nil {
		return
	}
	for _, p := range f.ptrs {
		if _, err := free.Call(f.s.ctx, uint64(p)); err != nil {
			f.s.log.Debug("guest free failed")
		}
	}
	f.ptrs = nil
}
