package embedded

import (
	"testing"

	"github.com/6over3/jsrt/abi"
)

func TestModules_StaticImport(t *testing.T) {
	e, _, _ := activeContext(t, abi.RuntimeAttributeNone)

	sources := map[string]string{
		"./bar.js": `export const bar = 41;`,
	}
	var (
		fetched []string
		pending []abi.ModuleRef
		ready   int
	)
	fetch := func(referencing abi.ModuleRef, specifier abi.ValueRef) (abi.ModuleRef, abi.ErrorCode) {
		spec, _ := e.StringToPointer(specifier)
		fetched = append(fetched, spec)
		m, code := e.InitializeModuleRecord(referencing, specifier)
		pending = append(pending, m)
		return m, code
	}
	notify := func(referencing abi.ModuleRef, exception abi.ValueRef) abi.ErrorCode {
		if exception.IsValid() {
			t.Errorf("unexpected module exception")
		}
		ready++
		return abi.NoError
	}
	mustOK(t, e.SetModuleHostInfo(abi.RootModule, abi.ModuleHostInfoFetchImportedModuleCallback, abi.FetchImportedModuleCallback(fetch)), "set fetch")
	mustOK(t, e.SetModuleHostInfo(abi.RootModule, abi.ModuleHostInfoNotifyModuleReadyCallback, abi.NotifyModuleReadyCallback(notify)), "set ready")

	spec, _ := e.PointerToString("foo.js")
	root, code := e.InitializeModuleRecord(abi.RootModule, spec)
	mustOK(t, code, "InitializeModuleRecord")
	src := `import { bar } from "./bar.js"; import * as again from "./bar.js"; export const foo = bar + again.bar - 40;`
	_, code = e.ParseModuleSource(root, 1, []byte(src))
	mustOK(t, code, "ParseModuleSource root")
	if ready != 0 {
		t.Fatal("ready fired before the graph was parsed")
	}

	for len(pending) > 0 {
		m := pending[0]
		pending = pending[1:]
		_, code := e.ParseModuleSource(m, 2, []byte(sources["./bar.js"]))
		mustOK(t, code, "ParseModuleSource dep")
	}
	if len(fetched) != 1 || fetched[0] != "./bar.js" {
		t.Fatalf("fetched = %v, want one fetch of ./bar.js", fetched)
	}
	if ready != 1 {
		t.Fatalf("ready fired %d times", ready)
	}

	ns, code := e.ModuleEvaluation(root)
	mustOK(t, code, "ModuleEvaluation")
	id, _ := e.GetPropertyIDFromName("foo")
	foo, code := e.GetProperty(ns, id)
	mustOK(t, code, "GetProperty foo")
	if n, _ := e.NumberToInt(foo); n != 42 {
		t.Errorf("foo = %d", n)
	}

	if _, code := e.ParseModuleSource(root, 1, []byte(src)); code != abi.ErrorModuleParsed {
		t.Errorf("reparse = %s", code)
	}
}

func TestModules_SyntaxError(t *testing.T) {
	e, _, _ := activeContext(t, abi.RuntimeAttributeNone)

	var readyException abi.ValueRef
	notify := func(_ abi.ModuleRef, exception abi.ValueRef) abi.ErrorCode {
		readyException = exception
		return abi.NoError
	}
	mustOK(t, e.SetModuleHostInfo(abi.RootModule, abi.ModuleHostInfoNotifyModuleReadyCallback, abi.NotifyModuleReadyCallback(notify)), "set ready")

	root, code := e.InitializeModuleRecord(abi.RootModule, abi.InvalidValue)
	mustOK(t, code, "InitializeModuleRecord")
	exc, code := e.ParseModuleSource(root, 1, []byte("export const = 1;"))
	if code != abi.ErrorScriptCompile {
		t.Fatalf("ParseModuleSource = %s", code)
	}
	if !exc.IsValid() || !readyException.IsValid() {
		t.Fatal("expected the compile exception to be reported")
	}
	if has, _ := e.HasException(); has {
		t.Error("module compile errors must not become the pending exception")
	}
	stored, code := e.GetModuleHostInfo(root, abi.ModuleHostInfoException)
	mustOK(t, code, "GetModuleHostInfo")
	if stored.(abi.ValueRef) != exc {
		t.Error("stored exception differs from the returned one")
	}
	if _, code := e.ModuleEvaluation(root); code != abi.ErrorScriptException {
		t.Errorf("evaluating a failed module = %s", code)
	}
}

func TestModuleHostInfo_Kinds(t *testing.T) {
	e, _, _ := activeContext(t, abi.RuntimeAttributeNone)

	m, code := e.InitializeModuleRecord(abi.RootModule, abi.InvalidValue)
	mustOK(t, code, "InitializeModuleRecord")
	mustOK(t, e.SetModuleHostInfo(m, abi.ModuleHostInfoHostDefined, 17), "host defined")
	mustOK(t, e.SetModuleHostInfo(m, abi.ModuleHostInfoURL, "file:///a.js"), "url")

	v, _ := e.GetModuleHostInfo(m, abi.ModuleHostInfoHostDefined)
	if v != 17 {
		t.Errorf("host defined = %v", v)
	}
	u, _ := e.GetModuleHostInfo(m, abi.ModuleHostInfoURL)
	if u != "file:///a.js" {
		t.Errorf("url = %v", u)
	}
	if code := e.SetModuleHostInfo(m, abi.ModuleHostInfoKind(99), nil); code != abi.ErrorInvalidModuleHostInfoKind {
		t.Errorf("unknown kind = %s", code)
	}
	if _, code := e.InitializeModuleRecord(abi.InvalidModule, abi.InvalidValue); code != abi.ErrorInvalidArgument {
		t.Errorf("invalid referencing module = %s", code)
	}
}
