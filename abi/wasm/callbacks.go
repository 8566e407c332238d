package wasm

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// hostModule is the import namespace of the guest's callback shims.
const hostModule = "jsrt"

// callbackKind selects a guest shim in jsrt_callback_ptr.
type callbackKind int32

const (
	kindNative callbackKind = iota
	kindPromiseContinuation
	kindFetchImportedModule
	kindFetchImportedModuleFromScript
	kindNotifyModuleReady
	kindDiagDebugEvent
)

func (k callbackKind) String() string {
	switch k {
	case kindNative:
		return "native_function"
	case kindPromiseContinuation:
		return "promise_continuation"
	case kindFetchImportedModule:
		return "fetch_imported_module"
	case kindFetchImportedModuleFromScript:
		return "fetch_imported_module_from_script"
	case kindNotifyModuleReady:
		return "notify_module_ready"
	case kindDiagDebugEvent:
		return "diag_debug_event"
	}
	return "unknown"
}

// moduleKind maps a module host-info slot to its callback kind.
func moduleKind(k abi.ModuleHostInfoKind) (callbackKind, bool) {
	switch k {
	case abi.ModuleHostInfoFetchImportedModuleCallback:
		return kindFetchImportedModule, true
	case abi.ModuleHostInfoFetchImportedModuleFromScriptCallback:
		return kindFetchImportedModuleFromScript, true
	case abi.ModuleHostInfoNotifyModuleReadyCallback:
		return kindNotifyModuleReady, true
	}
	return 0, false
}

// registration is one Go callback the guest may invoke. It lives until
// its owning runtime is disposed or it is replaced.
type registration struct {
	id    uint32
	owner abi.RuntimeRef
	kind  callbackKind
	fn    any
	state any
}

type moduleSlot struct {
	module uint32
	kind   callbackKind
}

// callbacks routes guest callback imports to registrations.
type callbacks struct {
	mu      sync.RWMutex
	next    uint32
	byID    map[uint32]*registration
	modules map[moduleSlot]uint32
	script  uint32
	log     *zap.Logger
}

func newCallbacks(log *zap.Logger) *callbacks {
	return &callbacks{
		byID:    make(map[uint32]*registration),
		modules: make(map[moduleSlot]uint32),
		log:     log,
	}
}

func (cb *callbacks) register(owner abi.RuntimeRef, kind callbackKind, fn, state any) *registration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.next++
	r := &registration{id: cb.next, owner: owner, kind: kind, fn: fn, state: state}
	cb.byID[r.id] = r
	return r
}

func (cb *callbacks) lookup(id uint32) *registration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.byID[id]
}

func (cb *callbacks) drop(id uint32) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.byID, id)
}

// setModule binds a registration to a module host-info slot, replacing
// the previous binding.
func (cb *callbacks) setModule(module uint32, r *registration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	slot := moduleSlot{module, r.kind}
	if old, ok := cb.modules[slot]; ok {
		delete(cb.byID, old)
	}
	cb.modules[slot] = r.id
	if r.kind == kindFetchImportedModuleFromScript {
		cb.script = r.id
	}
}

// module returns the registration for a module slot, falling back to the
// root module's.
func (cb *callbacks) module(module uint32, kind callbackKind) *registration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if id, ok := cb.modules[moduleSlot{module, kind}]; ok {
		return cb.byID[id]
	}
	return cb.byID[cb.modules[moduleSlot{0, kind}]]
}

func (cb *callbacks) fromScript() *registration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.byID[cb.script]
}

// dropRuntime releases every registration owned by rt.
func (cb *callbacks) dropRuntime(rt abi.RuntimeRef) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	n := 0
	for id, r := range cb.byID {
		if r.owner == rt {
			delete(cb.byID, id)
			n++
		}
	}
	for slot, id := range cb.modules {
		if _, ok := cb.byID[id]; !ok {
			delete(cb.modules, slot)
		}
	}
	return n
}

func (cb *callbacks) len() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return len(cb.byID)
}

// instantiate builds the jsrt host module. Signatures must match the guest
// shims exactly.
func (cb *callbacks) instantiate(ctx context.Context, r wazero.Runtime, s *Surface) (api.Module, error) {
	return r.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, callee, isConstruct, argv, argc, state uint32) uint32 {
			return uint32(cb.handleNative(s, callee, isConstruct != 0, argv, argc, state))
		}).
		Export(kindNative.String()).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, task, state uint32) {
			cb.handlePromiseContinuation(task, state)
		}).
		Export(kindPromiseContinuation.String()).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, referencing, specifier, out uint32) uint32 {
			return uint32(cb.handleFetch(s, referencing, specifier, out))
		}).
		Export(kindFetchImportedModule.String()).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, cookie, specifier, out uint32) uint32 {
			return uint32(cb.handleFetchFromScript(s, cookie, specifier, out))
		}).
		Export(kindFetchImportedModuleFromScript.String()).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, referencing, exception uint32) uint32 {
			return uint32(cb.handleReady(referencing, exception))
		}).
		Export(kindNotifyModuleReady.String()).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, event, data, state uint32) {
			cb.handleDiag(event, data, state)
		}).
		Export(kindDiagDebugEvent.String()).
		Instantiate(ctx)
}

func (cb *callbacks) handleNative(s *Surface, callee uint32, construct bool, argv, argc, state uint32) abi.ValueRef {
	r := cb.lookup(state)
	if r == nil || r.kind != kindNative {
		cb.log.Warn("native call for unknown registration", zap.Uint32("state", state))
		return abi.InvalidValue
	}
	raw, ok := s.mem.tokens(argv, argc)
	if !ok {
		cb.log.Warn("native call arguments out of range", zap.Uint32("argc", argc))
		return abi.InvalidValue
	}
	args := make([]abi.ValueRef, len(raw))
	for i, t := range raw {
		args[i] = abi.ValueRef(t)
	}
	return r.fn.(abi.NativeFunction)(abi.ValueRef(callee), construct, args, r.state)
}

func (cb *callbacks) handlePromiseContinuation(task, state uint32) {
	r := cb.lookup(state)
	if r == nil || r.kind != kindPromiseContinuation {
		cb.log.Warn("promise job for unknown registration", zap.Uint32("state", state))
		return
	}
	r.fn.(abi.PromiseContinuationCallback)(abi.ValueRef(task), r.state)
}

func (cb *callbacks) handleFetch(s *Surface, referencing, specifier, out uint32) abi.ErrorCode {
	r := cb.module(referencing, kindFetchImportedModule)
	if r == nil {
		return abi.ErrorInvalidArgument
	}
	m, code := r.fn.(abi.FetchImportedModuleCallback)(fromModule(referencing), abi.ValueRef(specifier))
	if code == abi.NoError {
		s.mem.putU32(out, toModule(m))
	}
	return code
}

func (cb *callbacks) handleFetchFromScript(s *Surface, cookie, specifier, out uint32) abi.ErrorCode {
	r := cb.fromScript()
	if r == nil {
		return abi.ErrorInvalidArgument
	}
	m, code := r.fn.(abi.FetchImportedModuleFromScriptCallback)(fromCookie(cookie), abi.ValueRef(specifier))
	if code == abi.NoError {
		s.mem.putU32(out, toModule(m))
	}
	return code
}

func (cb *callbacks) handleReady(referencing, exception uint32) abi.ErrorCode {
	r := cb.module(referencing, kindNotifyModuleReady)
	if r == nil {
		return abi.NoError
	}
	return r.fn.(abi.NotifyModuleReadyCallback)(fromModule(referencing), abi.ValueRef(exception))
}

func (cb *callbacks) handleDiag(event, data, state uint32) {
	r := cb.lookup(state)
	if r == nil || r.kind != kindDiagDebugEvent {
		return
	}
	r.fn.(abi.DiagDebugEventCallback)(abi.DiagDebugEvent(event), abi.ValueRef(data), r.state)
}
