package wasm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/6over3/jsrt/abi"
)

// Name is the registry name of the wasm surface.
const Name = "wasm"

// EnvModule names the environment variable holding the guest path used by
// the registered factory.
const EnvModule = "JSRT_WASM"

func init() {
	abi.Register(Name, func() (abi.Surface, error) {
		path := os.Getenv(EnvModule)
		if path == "" {
			return nil, fmt.Errorf("%s is not set", EnvModule)
		}
		bin, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read guest module: %w", err)
		}
		return New(context.Background(), bin, nil)
	})
}

// Options configures surface creation.
type Options struct {
	// Logger receives lifecycle logs and guest stdout/stderr.
	// Nil uses the package logger.
	Logger *zap.Logger
}

// Surface drives a JsRT guest module. Like the native engine it is not
// safe for concurrent use; the jsrt package serializes access.
type Surface struct {
	ctx    context.Context
	wazero wazero.Runtime
	module api.Module
	mem    *memory
	cb     *callbacks
	log    *zap.Logger

	mu       sync.RWMutex
	exports  map[string]api.Function
	shims    map[callbackKind]uint32
	retained map[abi.RuntimeRef][]uint32
	closed   bool
}

// New instantiates a JsRT guest from its wasm binary. The context is used
// for all guest calls and must remain valid for the lifetime of the
// Surface. Call Close to release the wazero runtime.
func New(ctx context.Context, wasmBytes []byte, opts *Options) (*Surface, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	cfg := wazero.NewRuntimeConfig().
		WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesTailCall)
	wzr := wazero.NewRuntimeWithConfig(ctx, cfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, wzr); err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := wzr.CompileModule(ctx, wasmBytes)
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("compile module: %w", err)
	}

	env, err := wzr.InstantiateWithConfig(ctx, memoryModule(minPages, maxPages), wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("instantiate env module: %w", err)
	}

	s := newSurface(ctx, wzr, log)
	if _, err := s.cb.instantiate(ctx, wzr, s); err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("bind callbacks: %w", err)
	}

	stdout := &zapio.Writer{Log: log.With(zap.String("stream", "stdout")), Level: zapcore.InfoLevel}
	stderr := &zapio.Writer{Log: log.With(zap.String("stream", "stderr")), Level: zapcore.WarnLevel}
	guest, err := wzr.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName("jsrt_engine").
		WithStdout(stdout).
		WithStderr(stderr).
		WithStartFunctions("_initialize"))
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("instantiate module: %w", err)
	}

	mem := guest.Memory()
	if mem == nil {
		mem = env.Memory()
	}
	s.attach(guest, mem)
	log.Debug("wasm surface ready", zap.Uint32("memory", mem.Size()))
	return s, nil
}

func newSurface(ctx context.Context, wzr wazero.Runtime, log *zap.Logger) *Surface {
	return &Surface{
		ctx:      ctx,
		wazero:   wzr,
		cb:       newCallbacks(log),
		log:      log,
		exports:  make(map[string]api.Function),
		shims:    make(map[callbackKind]uint32),
		retained: make(map[abi.RuntimeRef][]uint32),
	}
}

func (s *Surface) attach(guest api.Module, mem api.Memory) {
	s.module = guest
	s.mem = &memory{mem: mem}
}

// Name implements abi.Surface.
func (s *Surface) Name() string { return Name }

// Close releases the wazero runtime and every guest module.
func (s *Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.wazero.Close(s.ctx)
}

// export returns the named guest export, or nil when the guest lacks it.
func (s *Surface) export(name string) api.Function {
	s.mu.RLock()
	fn, ok := s.exports[name]
	s.mu.RUnlock()
	if ok {
		return fn
	}
	fn = s.module.ExportedFunction(name)
	s.mu.Lock()
	s.exports[name] = fn
	s.mu.Unlock()
	return fn
}

// call invokes a JsRT entry point and returns its status.
func (s *Surface) call(name string, args ...uint64) abi.ErrorCode {
	fn := s.export(name)
	if fn == nil {
		return abi.ErrorNotImplemented
	}
	res, err := fn.Call(s.ctx, args...)
	if err != nil {
		s.log.Error("guest call trapped", zap.String("export", name), zap.Error(err))
		return abi.ErrorFatal
	}
	if len(res) == 0 {
		return abi.NoError
	}
	return abi.ErrorCode(uint32(res[0]))
}

// shim returns the function-table index of the guest shim for kind.
func (s *Surface) shim(kind callbackKind) (uint32, abi.ErrorCode) {
	s.mu.RLock()
	idx, ok := s.shims[kind]
	s.mu.RUnlock()
	if ok {
		return idx, abi.NoError
	}
	fn := s.export("jsrt_callback_ptr")
	if fn == nil {
		return 0, abi.ErrorNotImplemented
	}
	res, err := fn.Call(s.ctx, uint64(kind))
	if err != nil || len(res) == 0 {
		return 0, abi.ErrorNotImplemented
	}
	idx = uint32(res[0])
	s.mu.Lock()
	s.shims[kind] = idx
	s.mu.Unlock()
	return idx, abi.NoError
}

// currentRuntime returns the runtime of the current context, or 0.
func (s *Surface) currentRuntime() abi.RuntimeRef {
	ctx, code := s.GetCurrentContext()
	if code != abi.NoError || !ctx.IsValid() {
		return 0
	}
	rt, code := s.GetRuntime(ctx)
	if code != abi.NoError {
		return 0
	}
	return rt
}

// retain keeps a guest buffer alive until rt is disposed.
func (s *Surface) retain(rt abi.RuntimeRef, ptr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retained[rt] = append(s.retained[rt], ptr)
}

// readU32 reads a 32-bit out-parameter. A pointer outside guest memory is
// fatal, like a trap.
func (s *Surface) readU32(ptr uint32) (uint32, abi.ErrorCode) {
	v, ok := s.mem.u32(ptr)
	if !ok {
		s.log.Error("guest pointer out of range", zap.Uint32("ptr", ptr))
		return 0, abi.ErrorFatal
	}
	return v, abi.NoError
}

// readSlice reads a (pointer, length) out-parameter pair and returns the
// guest memory it describes.
func (s *Surface) readSlice(ptrOut, lenOut uint32) ([]byte, abi.ErrorCode) {
	p, code := s.readU32(ptrOut)
	if code != abi.NoError {
		return nil, code
	}
	n, code := s.readU32(lenOut)
	if code != abi.NoError {
		return nil, code
	}
	data, ok := s.mem.read(p, n)
	if !ok {
		s.log.Error("guest buffer out of range", zap.Uint32("ptr", p), zap.Uint32("len", n))
		return nil, abi.ErrorFatal
	}
	return data, abi.NoError
}

// outRef calls name with one trailing out-parameter and returns the token
// written to it.
func (s *Surface) outRef(name string, args ...uint64) (uint32, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	out := f.out(1)
	if f.code != abi.NoError {
		return 0, f.code
	}
	code := s.call(name, append(args, uint64(out))...)
	if code != abi.NoError {
		return 0, code
	}
	return s.readU32(out)
}

// outValue is outRef for value results.
func (s *Surface) outValue(name string, args ...uint64) (abi.ValueRef, abi.ErrorCode) {
	v, code := s.outRef(name, args...)
	return abi.ValueRef(v), code
}

// outBool calls name with a trailing bool out-parameter.
func (s *Surface) outBool(name string, args ...uint64) (bool, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	out := f.out(1)
	if f.code != abi.NoError {
		return false, f.code
	}
	code := s.call(name, append(args, uint64(out))...)
	if code != abi.NoError {
		return false, code
	}
	b, ok := s.mem.u8(out)
	if !ok {
		return false, abi.ErrorFatal
	}
	return b != 0, abi.NoError
}

func ref[T ~uintptr](t T) uint64 { return uint64(uint32(t)) }

func flag(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// toModule translates the root sentinel to the null pointer the guest
// expects.
func toModule(m abi.ModuleRef) uint32 {
	if m.IsRoot() {
		return 0
	}
	return uint32(m)
}

func fromModule(m uint32) abi.ModuleRef {
	if m == 0 {
		return abi.RootModule
	}
	return abi.ModuleRef(m)
}

func toCookie(c abi.SourceContext) uint64 {
	if c == abi.SourceContextNone {
		return 0xFFFFFFFF
	}
	return uint64(uint32(c))
}

func fromCookie(c uint32) abi.SourceContext {
	if c == 0xFFFFFFFF {
		return abi.SourceContextNone
	}
	return abi.SourceContext(c)
}
