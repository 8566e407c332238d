package jsrt

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/6over3/jsrt/abi"
)

// ModuleSource resolves and loads module text for a ModuleLoader.
type ModuleSource interface {
	// Resolve maps specifier, imported by the module named referrer, to a
	// canonical name. The referrer is "" for the entry module.
	Resolve(referrer, specifier string) (string, error)
	// Load returns the text of a resolved module.
	Load(name string) ([]byte, error)
}

// MapSource serves modules from memory, keyed by slash-separated paths.
type MapSource map[string]string

func (m MapSource) Resolve(referrer, specifier string) (string, error) {
	return resolveSlash(referrer, specifier), nil
}

func (m MapSource) Load(name string) ([]byte, error) {
	src, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("module %q not found", name)
	}
	return []byte(src), nil
}

// FileSource serves modules from disk. Relative specifiers resolve
// against the importing file; the entry module resolves against Dir.
type FileSource struct {
	Dir string
}

func (f FileSource) Resolve(referrer, specifier string) (string, error) {
	if filepath.IsAbs(specifier) {
		return filepath.Clean(specifier), nil
	}
	base := f.Dir
	if referrer != "" {
		base = filepath.Dir(referrer)
	}
	abs, err := filepath.Abs(filepath.Join(base, filepath.FromSlash(specifier)))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", specifier, err)
	}
	return abs, nil
}

func (f FileSource) Load(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func resolveSlash(referrer, specifier string) string {
	if referrer == "" || !(strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")) {
		return path.Clean(specifier)
	}
	return path.Join(path.Dir(referrer), specifier)
}

// ModuleLoader drives a module graph through a context: it answers fetch
// requests with one record per resolved name, parses queued records, and
// evaluates the entry module once the graph is ready.
//
// A loader is bound to one context and all its methods must be called with
// that context current.
type ModuleLoader struct {
	ctx *Context
	src ModuleSource
	log *zap.Logger

	records map[string]ModuleRecord
	names   map[abi.ModuleRef]string
	pending []ModuleRecord
	cookie  SourceContext
	fetches int

	ready     bool
	exception Value
}

// NewModuleLoader installs the loader as the context's root module
// resolver.
func NewModuleLoader(c *Context, src ModuleSource) (*ModuleLoader, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	l := &ModuleLoader{
		ctx:     c,
		src:     src,
		log:     c.rt.log.With(zap.Stringer("context", c.ref)),
		records: make(map[string]ModuleRecord),
		names:   make(map[abi.ModuleRef]string),
		cookie:  SourceContextNone,
	}
	root := c.RootModule()
	if err := root.SetFetchImportedModule(l.fetch); err != nil {
		return nil, err
	}
	if err := root.SetNotifyModuleReady(l.notify); err != nil {
		return nil, err
	}
	return l, nil
}

// Fetches returns how many imports the engine asked the loader to resolve.
func (l *ModuleLoader) Fetches() int { return l.fetches }

// Run loads specifier and its imports and evaluates it, returning the
// module namespace.
func (l *ModuleLoader) Run(specifier string) (Value, error) {
	name, err := l.src.Resolve("", specifier)
	if err != nil {
		return Value{}, err
	}
	entry, ok := l.records[name]
	if !ok {
		l.ready = false
		l.exception = Value{}
		if entry, err = l.create(RootModule, name); err != nil {
			return Value{}, err
		}
		if err := l.drain(); err != nil {
			return Value{}, err
		}
		if !l.ready {
			return Value{}, fmt.Errorf("module graph of %q did not become ready", name)
		}
		if l.exception.IsValid() {
			return Value{}, scriptError(l.ctx, abi.ErrorScriptException, l.exception.ref)
		}
	}
	return entry.Evaluate()
}

func (l *ModuleLoader) create(referencing ModuleRecord, name string) (ModuleRecord, error) {
	m, err := l.ctx.CreateModule(referencing, name)
	if err != nil {
		return ModuleRecord{}, err
	}
	if err := m.SetURL(name); err != nil {
		return ModuleRecord{}, err
	}
	l.records[name] = m
	l.names[m.ref] = name
	l.pending = append(l.pending, m)
	return m, nil
}

func (l *ModuleLoader) drain() error {
	for len(l.pending) > 0 {
		m := l.pending[0]
		l.pending = l.pending[1:]
		name := l.names[m.ref]

		raw, err := l.src.Load(name)
		if err != nil {
			return fmt.Errorf("load module %q: %w", name, err)
		}
		src, err := decodeSource(raw)
		if err != nil {
			return fmt.Errorf("decode module %q: %w", name, err)
		}
		l.cookie = l.cookie.Inc()
		l.log.Debug("parsing module", zap.String("module", name), zap.Stringer("cookie", l.cookie))
		if err := m.ParseSource(src, l.cookie); err != nil {
			return err
		}
	}
	return nil
}

func (l *ModuleLoader) fetch(referencing ModuleRecord, specifier string) (ModuleRecord, error) {
	l.fetches++
	name, err := l.src.Resolve(l.names[referencing.ref], specifier)
	if err != nil {
		return ModuleRecord{}, err
	}
	if m, ok := l.records[name]; ok {
		return m, nil
	}
	return l.create(referencing, name)
}

func (l *ModuleLoader) notify(_ ModuleRecord, exception Value) error {
	l.ready = true
	l.exception = exception
	return nil
}

// decodeSource normalizes module text to UTF-8, honoring a UTF-8 or
// UTF-16 byte order mark.
func decodeSource(raw []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	return out, err
}
