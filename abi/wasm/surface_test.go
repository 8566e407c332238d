package wasm

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

const (
	fakeRuntime = 0x10
	fakeContext = 0x20
	fakeModule  = 0x30
	fakeDep     = 0x40
)

type fakeFunc struct{ shim, state uint32 }

// fakeGuest implements a handful of JsRT exports in Go so the surface can be
// exercised without a compiled engine.
type fakeGuest struct {
	wzr   wazero.Runtime
	mem   api.Memory
	guest api.Module
	heap  uint32

	values      map[uint32]any
	next        uint32
	current     uint32
	referencing uint32
	fetched     uint32
	ready       int
	hostInfo    map[[2]uint32]uint32
	frees       int
}

func (g *fakeGuest) store(v any) uint32 {
	g.next += 4
	tok := 0x1000 + g.next
	g.values[tok] = v
	return tok
}

func (g *fakeGuest) malloc(n uint32) uint32 {
	p := (g.heap + 7) &^ 7
	g.heap = p + n
	return p
}

// instantiate builds the fake exports as the host module "fake" and wraps
// them, together with the surface's callback imports, in a compiled guest.
// wazero refuses ExportedFunction on host modules, so every call the
// surface or the fake makes goes through the wrappers.
func (g *fakeGuest) instantiate(ctx context.Context) (api.Module, error) {
	fake, err := g.hostModule(ctx)
	if err != nil {
		return nil, err
	}
	compiled, err := g.wzr.CompileModule(ctx, passThrough(fake, g.wzr.Module(hostModule)))
	if err != nil {
		return nil, err
	}
	g.guest, err = g.wzr.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("fake_guest"))
	return g.guest, err
}

func (g *fakeGuest) hostModule(ctx context.Context) (api.Module, error) {
	return g.wzr.NewHostModuleBuilder("fake").
		NewFunctionBuilder().WithFunc(func(_ context.Context, n uint32) uint32 { return g.malloc(n) }).Export("malloc").
		NewFunctionBuilder().WithFunc(func(_ context.Context, p uint32) { g.frees++ }).Export("free").
		NewFunctionBuilder().WithFunc(func(_ context.Context, kind uint32) uint32 { return 0x100 + kind }).Export("jsrt_callback_ptr").
		NewFunctionBuilder().WithFunc(func(_ context.Context, attrs, ts, out uint32) uint32 {
		g.mem.WriteUint32Le(out, fakeRuntime)
		return 0
	}).Export("JsCreateRuntime").
		NewFunctionBuilder().WithFunc(func(_ context.Context, rt uint32) uint32 { return 0 }).Export("JsDisposeRuntime").
		NewFunctionBuilder().WithFunc(func(_ context.Context, rt, out uint32) uint32 {
		g.mem.WriteUint32Le(out, fakeContext)
		return 0
	}).Export("JsCreateContext").
		NewFunctionBuilder().WithFunc(func(_ context.Context, c uint32) uint32 {
		g.current = c
		return 0
	}).Export("JsSetCurrentContext").
		NewFunctionBuilder().WithFunc(func(_ context.Context, out uint32) uint32 {
		g.mem.WriteUint32Le(out, g.current)
		return 0
	}).Export("JsGetCurrentContext").
		NewFunctionBuilder().WithFunc(func(_ context.Context, c, out uint32) uint32 {
		g.mem.WriteUint32Le(out, fakeRuntime)
		return 0
	}).Export("JsGetRuntime").
		NewFunctionBuilder().WithFunc(func(_ context.Context, p, n, out uint32) uint32 {
		raw, _ := g.mem.Read(p, n*2)
		g.mem.WriteUint32Le(out, g.store(append([]byte(nil), raw...)))
		return 0
	}).Export("JsPointerToString").
		NewFunctionBuilder().WithFunc(func(_ context.Context, v, outP, outN uint32) uint32 {
		raw, ok := g.values[v].([]byte)
		if !ok {
			return uint32(abi.ErrorInvalidArgument)
		}
		p := g.malloc(uint32(len(raw)))
		g.mem.Write(p, raw)
		g.mem.WriteUint32Le(outP, p)
		g.mem.WriteUint32Le(outN, uint32(len(raw)/2))
		return 0
	}).Export("JsStringToPointer").
		NewFunctionBuilder().WithFunc(func(_ context.Context, n int32, out uint32) uint32 {
		g.mem.WriteUint32Le(out, g.store(n))
		return 0
	}).Export("JsIntToNumber").
		NewFunctionBuilder().WithFunc(func(_ context.Context, v, out uint32) uint32 {
		n, ok := g.values[v].(int32)
		if !ok {
			return uint32(abi.ErrorInvalidArgument)
		}
		g.mem.WriteUint32Le(out, uint32(n))
		return 0
	}).Export("JsNumberToInt").
		NewFunctionBuilder().WithFunc(func(_ context.Context, x float64, out uint32) uint32 {
		g.mem.WriteUint32Le(out, g.store(x))
		return 0
	}).Export("JsDoubleToNumber").
		NewFunctionBuilder().WithFunc(func(_ context.Context, v, out uint32) uint32 {
		g.mem.WriteFloat64Le(out, g.values[v].(float64))
		return 0
	}).Export("JsNumberToDouble").
		NewFunctionBuilder().WithFunc(func(_ context.Context, shim, state, out uint32) uint32 {
		g.mem.WriteUint32Le(out, g.store(fakeFunc{shim, state}))
		return 0
	}).Export("JsCreateFunction").
		NewFunctionBuilder().WithFunc(func(ctx context.Context, fn, argv, argc, out uint32) uint32 {
		f, ok := g.values[fn].(fakeFunc)
		if !ok || f.shim != 0x100+uint32(kindNative) {
			return uint32(abi.ErrorInvalidArgument)
		}
		res, err := g.guest.ExportedFunction(kindNative.String()).
			Call(ctx, uint64(fn), 0, uint64(argv), uint64(argc), uint64(f.state))
		if err != nil {
			return uint32(abi.ErrorFatal)
		}
		g.mem.WriteUint32Le(out, uint32(res[0]))
		return 0
	}).Export("JsCallFunction").
		NewFunctionBuilder().WithFunc(func(_ context.Context, referencing, spec, out uint32) uint32 {
		g.referencing = referencing
		g.mem.WriteUint32Le(out, fakeModule)
		return 0
	}).Export("JsInitializeModuleRecord").
		NewFunctionBuilder().WithFunc(func(_ context.Context, m, kind, info uint32) uint32 {
		g.hostInfo[[2]uint32{m, kind}] = info
		return 0
	}).Export("JsSetModuleHostInfo").
		NewFunctionBuilder().WithFunc(func(_ context.Context, m, kind, out uint32) uint32 {
		g.mem.WriteUint32Le(out, g.hostInfo[[2]uint32{m, kind}])
		return 0
	}).Export("JsGetModuleHostInfo").
		NewFunctionBuilder().WithFunc(func(ctx context.Context, m, cookie, src, n, flags, exc uint32) uint32 {
		spec, _, _ := encodeUTF16("./dep.js")
		out := g.malloc(4)
		res, err := g.guest.ExportedFunction(kindFetchImportedModule.String()).
			Call(ctx, uint64(m), uint64(g.store(spec)), uint64(out))
		if err != nil || res[0] != 0 {
			return uint32(abi.ErrorInvalidArgument)
		}
		g.fetched, _ = g.mem.ReadUint32Le(out)
		if _, err := g.guest.ExportedFunction(kindNotifyModuleReady.String()).Call(ctx, uint64(m), 0); err != nil {
			return uint32(abi.ErrorFatal)
		}
		g.ready++
		return 0
	}).Export("JsParseModuleSource").
		NewFunctionBuilder().WithFunc(func(_ context.Context, src, buf, size uint32) uint32 {
		const blob = "serialized!!"
		if buf == 0 {
			g.mem.WriteUint32Le(size, uint32(len(blob)))
			return 0
		}
		g.mem.Write(buf, []byte(blob))
		return 0
	}).Export("JsSerializeScript").
		NewFunctionBuilder().WithFunc(func(_ context.Context, arr, outBuf, outLen, outType, outSize uint32) uint32 {
		p := g.malloc(8)
		g.values[arr] = p
		g.mem.WriteUint32Le(outBuf, p)
		g.mem.WriteUint32Le(outLen, 8)
		g.mem.WriteUint32Le(outType, uint32(abi.ArrayTypeInt16))
		g.mem.WriteUint32Le(outSize, 2)
		return 0
	}).Export("JsGetTypedArrayStorage").
		NewFunctionBuilder().WithFunc(func(_ context.Context, buf, outBuf, outLen uint32) uint32 {
		g.mem.WriteUint32Le(outBuf, 0xFFFF0000)
		g.mem.WriteUint32Le(outLen, 16)
		return 0
	}).Export("JsGetArrayBufferStorage").
		Instantiate(ctx)
}

// passThrough returns a wasm binary that imports every function exported by
// hosts and exports, under the same name, a wrapper forwarding its
// arguments to the import.
func passThrough(hosts ...api.Module) []byte {
	type fn struct {
		module, name string
		def          api.FunctionDefinition
	}
	var fns []fn
	for _, h := range hosts {
		defs := h.ExportedFunctionDefinitions()
		names := make([]string, 0, len(defs))
		for name := range defs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fns = append(fns, fn{h.Name(), name, defs[name]})
		}
	}

	str := func(s string) []byte { return append(leb128(uint32(len(s))), s...) }
	vec := func(items [][]byte) []byte {
		out := leb128(uint32(len(items)))
		for _, it := range items {
			out = append(out, it...)
		}
		return out
	}
	section := func(id byte, body []byte) []byte {
		return append(append([]byte{id}, leb128(uint32(len(body)))...), body...)
	}

	var types, imports, funcs, exports, code [][]byte
	n := uint32(len(fns))
	for i, f := range fns {
		idx := leb128(uint32(i))
		params, results := f.def.ParamTypes(), f.def.ResultTypes()
		sig := append([]byte{0x60}, leb128(uint32(len(params)))...)
		sig = append(sig, params...)
		sig = append(sig, leb128(uint32(len(results)))...)
		types = append(types, append(sig, results...))

		imp := append(str(f.module), str(f.name)...)
		imports = append(imports, append(append(imp, 0x00), idx...))
		funcs = append(funcs, idx)
		exports = append(exports, append(append(str(f.name), 0x00), leb128(n+uint32(i))...))

		body := []byte{0x00} // no locals
		for p := range params {
			body = append(append(body, 0x20), leb128(uint32(p))...) // local.get
		}
		body = append(append(body, 0x10), idx...) // call
		body = append(body, 0x0b)
		code = append(code, append(leb128(uint32(len(body))), body...))
	}

	b := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	b = append(b, section(0x01, vec(types))...)
	b = append(b, section(0x02, vec(imports))...)
	b = append(b, section(0x03, vec(funcs))...)
	b = append(b, section(0x07, vec(exports))...)
	return append(b, section(0x0a, vec(code))...)
}

func newFake(t *testing.T) (*Surface, *fakeGuest) {
	t.Helper()
	ctx := context.Background()
	wzr := wazero.NewRuntime(ctx)
	t.Cleanup(func() { wzr.Close(ctx) })

	env, err := wzr.InstantiateWithConfig(ctx, memoryModule(1, 16), wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		t.Fatalf("env module: %v", err)
	}
	s := newSurface(ctx, wzr, zap.NewNop())
	if _, err := s.cb.instantiate(ctx, wzr, s); err != nil {
		t.Fatalf("host module: %v", err)
	}
	g := &fakeGuest{
		wzr:      wzr,
		mem:      env.Memory(),
		heap:     1024,
		values:   make(map[uint32]any),
		hostInfo: make(map[[2]uint32]uint32),
	}
	guest, err := g.instantiate(ctx)
	if err != nil {
		t.Fatalf("fake guest: %v", err)
	}
	s.attach(guest, env.Memory())
	return s, g
}

func mustOK(t *testing.T, code abi.ErrorCode, what string) {
	t.Helper()
	if code != abi.NoError {
		t.Fatalf("%s: %s", what, code)
	}
}

// enter creates a runtime with a current context.
func enter(t *testing.T, s *Surface) abi.RuntimeRef {
	t.Helper()
	rt, code := s.CreateRuntime(abi.RuntimeAttributeNone)
	mustOK(t, code, "CreateRuntime")
	c, code := s.CreateContext(rt)
	mustOK(t, code, "CreateContext")
	mustOK(t, s.SetCurrentContext(c), "SetCurrentContext")
	return rt
}

func TestLEB128(t *testing.T) {
	tests := []struct {
		in   uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{384, []byte{0x80, 0x03}},
		{4096, []byte{0x80, 0x20}},
	}
	for _, tt := range tests {
		if got := leb128(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("leb128(%d) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestMemoryModule(t *testing.T) {
	ctx := context.Background()
	wzr := wazero.NewRuntime(ctx)
	defer wzr.Close(ctx)

	mod, err := wzr.InstantiateWithConfig(ctx, memoryModule(2, 4), wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if got := mod.Memory().Size(); got != 2*65536 {
		t.Errorf("memory size = %d", got)
	}
}

func TestSurface_MissingExport(t *testing.T) {
	s, _ := newFake(t)
	if code := s.CollectGarbage(fakeRuntime); code != abi.ErrorNotImplemented {
		t.Errorf("CollectGarbage = %s, want NotImplemented", code)
	}
}

func TestSurface_CurrentContext(t *testing.T) {
	s, _ := newFake(t)
	enter(t, s)
	c, code := s.GetCurrentContext()
	mustOK(t, code, "GetCurrentContext")
	if c != fakeContext {
		t.Errorf("current = %s", c)
	}
	if rt := s.currentRuntime(); rt != fakeRuntime {
		t.Errorf("current runtime = %s", rt)
	}
}

func TestSurface_Strings(t *testing.T) {
	s, _ := newFake(t)
	enter(t, s)
	for _, str := range []string{"", "hello", "héllo, 世界", "emoji 🌍 pair"} {
		v, code := s.PointerToString(str)
		mustOK(t, code, "PointerToString")
		got, code := s.StringToPointer(v)
		mustOK(t, code, "StringToPointer")
		if got != str {
			t.Errorf("round trip %q = %q", str, got)
		}
	}
}

func TestSurface_Numbers(t *testing.T) {
	s, _ := newFake(t)
	enter(t, s)

	v, code := s.IntToNumber(-7)
	mustOK(t, code, "IntToNumber")
	if n, _ := s.NumberToInt(v); n != -7 {
		t.Errorf("int = %d", n)
	}
	v, code = s.DoubleToNumber(3.25)
	mustOK(t, code, "DoubleToNumber")
	if f, _ := s.NumberToDouble(v); f != 3.25 {
		t.Errorf("double = %v", f)
	}
}

func TestSurface_NativeFunction(t *testing.T) {
	s, _ := newFake(t)
	rt := enter(t, s)

	var calls int
	var seen []abi.ValueRef
	fn := func(callee abi.ValueRef, construct bool, args []abi.ValueRef, state any) abi.ValueRef {
		calls++
		seen = args
		if state != "state" {
			t.Errorf("state = %v", state)
		}
		v, _ := s.IntToNumber(int32(len(args)))
		return v
	}
	f, code := s.CreateFunction(fn, "state")
	mustOK(t, code, "CreateFunction")

	this, _ := s.IntToNumber(0)
	arg, _ := s.IntToNumber(5)
	res, code := s.CallFunction(f, []abi.ValueRef{this, arg})
	mustOK(t, code, "CallFunction")
	if n, _ := s.NumberToInt(res); n != 2 {
		t.Errorf("result = %d", n)
	}
	if len(seen) != 2 || seen[1] != arg {
		t.Errorf("args = %v", seen)
	}

	mustOK(t, s.DisposeRuntime(rt), "DisposeRuntime")
	if n := s.cb.len(); n != 0 {
		t.Fatalf("%d registrations survived dispose", n)
	}
	res, code = s.CallFunction(f, []abi.ValueRef{this})
	mustOK(t, code, "CallFunction after dispose")
	if res.IsValid() || calls != 1 {
		t.Errorf("disposed registration was invoked")
	}
}

func TestSurface_Modules(t *testing.T) {
	s, g := newFake(t)
	enter(t, s)

	var specifier string
	var readyFor abi.ModuleRef
	fetch := func(referencing abi.ModuleRef, spec abi.ValueRef) (abi.ModuleRef, abi.ErrorCode) {
		if referencing != fakeModule {
			t.Errorf("referencing = %s", referencing)
		}
		specifier, _ = s.StringToPointer(spec)
		return fakeDep, abi.NoError
	}
	ready := func(referencing abi.ModuleRef, exception abi.ValueRef) abi.ErrorCode {
		readyFor = referencing
		return abi.NoError
	}
	mustOK(t, s.SetModuleHostInfo(abi.RootModule, abi.ModuleHostInfoFetchImportedModuleCallback, abi.FetchImportedModuleCallback(fetch)), "set fetch")
	mustOK(t, s.SetModuleHostInfo(abi.RootModule, abi.ModuleHostInfoNotifyModuleReadyCallback, abi.NotifyModuleReadyCallback(ready)), "set ready")

	name, _ := s.PointerToString("main.js")
	m, code := s.InitializeModuleRecord(abi.RootModule, name)
	mustOK(t, code, "InitializeModuleRecord")
	if m != fakeModule || g.referencing != 0 {
		t.Fatalf("module = %s, guest referencing = %d", m, g.referencing)
	}

	_, code = s.ParseModuleSource(m, 1, []byte(`import "./dep.js";`))
	mustOK(t, code, "ParseModuleSource")
	if specifier != "./dep.js" || g.fetched != fakeDep {
		t.Errorf("fetch saw %q, guest got %d", specifier, g.fetched)
	}
	if readyFor != fakeModule || g.ready != 1 {
		t.Errorf("ready for %s, %d times", readyFor, g.ready)
	}

	cb, code := s.GetModuleHostInfo(abi.RootModule, abi.ModuleHostInfoFetchImportedModuleCallback)
	mustOK(t, code, "GetModuleHostInfo")
	if _, ok := cb.(abi.FetchImportedModuleCallback); !ok {
		t.Errorf("host info = %T", cb)
	}
	if code := s.SetModuleHostInfo(m, abi.ModuleHostInfoNotifyModuleReadyCallback, "not a callback"); code != abi.ErrorInvalidArgument {
		t.Errorf("mistyped callback = %s", code)
	}
	if _, code := s.InitializeModuleRecord(abi.InvalidModule, name); code != abi.ErrorInvalidArgument {
		t.Errorf("invalid referencing = %s", code)
	}
}

func TestSurface_SerializeScript(t *testing.T) {
	s, _ := newFake(t)
	enter(t, s)

	n, code := s.SerializeScript("1+1", nil)
	mustOK(t, code, "size")
	if n != len("serialized!!") {
		t.Fatalf("size = %d", n)
	}
	buf := make([]byte, n)
	n, code = s.SerializeScript("1+1", buf)
	mustOK(t, code, "copy")
	if string(buf[:n]) != "serialized!!" {
		t.Errorf("buffer = %q", buf)
	}
}

func TestSurface_TypedArrayStorageAliases(t *testing.T) {
	s, g := newFake(t)
	enter(t, s)

	st, code := s.GetTypedArrayStorage(0x77)
	mustOK(t, code, "GetTypedArrayStorage")
	if st.Type != abi.ArrayTypeInt16 || st.ElementSize != 2 || len(st.Data) != 8 {
		t.Fatalf("storage = %+v", st)
	}
	st.Data[0] = 0xAB
	b, _ := g.mem.ReadByte(g.values[0x77].(uint32))
	if b != 0xAB {
		t.Error("storage does not alias guest memory")
	}
}

func TestSurface_MemoryLimitRange(t *testing.T) {
	s, _ := newFake(t)
	if code := s.SetRuntimeMemoryLimit(fakeRuntime, 1<<40); code != abi.ErrorInvalidArgument {
		t.Errorf("oversized limit = %s", code)
	}
}

func TestSurface_OutOfRangePointerIsFatal(t *testing.T) {
	s, _ := newFake(t)
	enter(t, s)
	if _, code := s.GetArrayBufferStorage(abi.ValueRef(0x1004)); code != abi.ErrorFatal {
		t.Errorf("GetArrayBufferStorage = %s, want Fatal", code)
	}

	m := s.mem
	end := m.mem.Size()
	if _, ok := m.u32(end - 2); ok {
		t.Error("u32 read across the end of memory succeeded")
	}
	if _, ok := m.u8(end); ok {
		t.Error("u8 read past the end of memory succeeded")
	}
	if _, ok := m.f64(end - 4); ok {
		t.Error("f64 read across the end of memory succeeded")
	}
	if _, code := s.readU32(end); code != abi.ErrorFatal {
		t.Errorf("readU32 past the end = %s, want Fatal", code)
	}
}

func TestFactory_RequiresModulePath(t *testing.T) {
	t.Setenv(EnvModule, "")
	if _, err := abi.Open(Name); err == nil {
		t.Error("expected an error without a guest path")
	}
}
