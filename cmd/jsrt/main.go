package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/abi/embedded"
	"github.com/6over3/jsrt/abi/wasm"
	"github.com/6over3/jsrt/jsrt"
)

func main() {
	var (
		module      = flag.String("m", "", "Run an ES module entry point")
		expr        = flag.String("e", "", "Evaluate an expression and print the result")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		surface     = flag.String("surface", "", "Engine surface to use (default $"+abi.EnvSurface+" or "+abi.DefaultSurfaceName+")")
		wasmFile    = flag.String("wasm", "", "Path to a JsRT guest wasm module")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: jsrt [flags] [file.js ...]")
		fmt.Fprintln(os.Stderr, "       jsrt -m entry.mjs")
		fmt.Fprintln(os.Stderr, "       jsrt -e 'expression'")
		fmt.Fprintln(os.Stderr, "       jsrt -i  (interactive mode)")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
	}
	defer log.Sync()
	jsrt.SetLogger(log)
	embedded.SetLogger(log)
	wasm.SetLogger(log)

	opts := options{
		module:  *module,
		expr:    *expr,
		files:   flag.Args(),
		surface: *surface,
		wasm:    *wasmFile,
		log:     log,
	}
	if *interactive || (opts.module == "" && opts.expr == "" && len(opts.files) == 0 && term.IsTerminal(int(os.Stdin.Fd()))) {
		opts.repl = true
	}

	if err := run(opts, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	module  string
	expr    string
	files   []string
	surface string
	wasm    string
	repl    bool
	log     *zap.Logger
}

// openSurface picks the engine implementation named by the flags. A nil
// surface selects abi.Default.
func openSurface(ctx context.Context, opts options) (abi.Surface, func() error, error) {
	noop := func() error { return nil }
	switch {
	case opts.wasm != "":
		bin, err := os.ReadFile(opts.wasm)
		if err != nil {
			return nil, nil, fmt.Errorf("read guest module: %w", err)
		}
		s, err := wasm.New(ctx, bin, &wasm.Options{Logger: opts.log})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case opts.surface == abi.DefaultSurfaceName:
		return embedded.New(embedded.WithLogger(opts.log)), noop, nil
	case opts.surface != "":
		s, err := abi.Open(opts.surface)
		if err != nil {
			return nil, nil, err
		}
		if c, ok := s.(io.Closer); ok {
			return s, c.Close, nil
		}
		return s, noop, nil
	}
	return nil, noop, nil
}

func run(opts options, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	s, closeSurface, err := openSurface(context.Background(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeSurface(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rtOpts := []jsrt.Option{jsrt.WithLogger(opts.log)}
	if s != nil {
		rtOpts = append(rtOpts, jsrt.WithSurface(s))
	}
	rt, err := jsrt.NewRuntime(rtOpts...)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer func() {
		if derr := rt.Dispose(); derr != nil && err == nil {
			err = derr
		}
	}()

	sess := newSession(rt, stdout, stderr)
	if _, err := sess.newContext(); err != nil {
		return err
	}

	if opts.repl {
		return runInteractive(sess)
	}

	for _, name := range opts.files {
		if err := sess.runFile(name); err != nil {
			return err
		}
	}
	if opts.module != "" {
		if err := sess.runModule(opts.module); err != nil {
			return err
		}
	}
	if opts.expr != "" {
		out, err := sess.eval(opts.expr, "<eval>")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out)
	}
	if opts.module == "" && opts.expr == "" && len(opts.files) == 0 {
		src, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if _, err := sess.eval(string(src), "<stdin>"); err != nil {
			return err
		}
	}
	return nil
}

// session is the set of contexts the command works with. Every context
// gets print and a console that write to the session's output.
type session struct {
	rt       *jsrt.Runtime
	out, err io.Writer
	contexts []*jsrt.Context
	current  int
	cookie   jsrt.SourceContext
}

func newSession(rt *jsrt.Runtime, stdout, stderr io.Writer) *session {
	return &session{rt: rt, out: stdout, err: stderr, cookie: jsrt.SourceContextNone}
}

// newContext creates a context, installs the host globals and makes it the
// current one.
func (s *session) newContext() (*jsrt.Context, error) {
	c, err := s.rt.CreateContext()
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	err = c.RequestScope(func() error {
		g, err := c.GlobalObject()
		if err != nil {
			return err
		}
		for name, toErr := range map[string]bool{"print": false, "printErr": true} {
			fn, err := c.NewFunction(name, s.printer(toErr))
			if err != nil {
				return err
			}
			if err := g.Set(name, fn); err != nil {
				return err
			}
		}
		_, err = c.RunScript(consoleShim, jsrt.SourceContextNone, "<console>")
		return err
	})
	if err != nil {
		_, _ = c.Release()
		return nil, fmt.Errorf("set up context: %w", err)
	}
	s.contexts = append(s.contexts, c)
	s.current = len(s.contexts) - 1
	return c, nil
}

const consoleShim = `(function (g) {
	var c = g.console || (g.console = {});
	c.log = c.info = c.debug = print;
	c.warn = c.error = printErr;
})(globalThis);`

// printer returns a host function that writes its arguments, converted to
// strings and separated by spaces, followed by a newline.
func (s *session) printer(toErr bool) jsrt.Function {
	return func(call jsrt.FunctionCall) (jsrt.Value, error) {
		parts := make([]string, len(call.Args))
		for i, a := range call.Args {
			text, err := a.Text()
			if err != nil {
				return jsrt.Value{}, err
			}
			parts[i] = text
		}
		w := s.out
		if toErr {
			w = s.err
		}
		_, err := fmt.Fprintln(w, strings.Join(parts, " "))
		return jsrt.Value{}, err
	}
}

func (s *session) context() *jsrt.Context {
	return s.contexts[s.current]
}

// eval runs src in the current context and renders the completion value.
func (s *session) eval(src, name string) (string, error) {
	c := s.context()
	s.cookie = s.cookie.Inc()
	cookie := s.cookie
	return jsrt.RequestScopeValue(c, func() (string, error) {
		v, err := c.RunScript(src, cookie, name)
		if err != nil {
			return "", describe(err)
		}
		return render(v)
	})
}

func (s *session) runFile(name string) error {
	src, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		abs = name
	}
	_, err = s.eval(string(src), abs)
	return err
}

func (s *session) runModule(entry string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	c := s.context()
	return c.RequestScope(func() error {
		l, err := jsrt.NewModuleLoader(c, jsrt.FileSource{Dir: dir})
		if err != nil {
			return err
		}
		_, err = l.Run(entry)
		return describe(err)
	})
}

// render formats a completion value the way a REPL shows it.
func render(v jsrt.Value) (string, error) {
	if !v.IsValid() {
		return "undefined", nil
	}
	t, err := v.Type()
	if err != nil {
		return "", err
	}
	text, err := v.Text()
	if err != nil {
		return "", err
	}
	if t == abi.TypeString {
		return fmt.Sprintf("%q", text), nil
	}
	return text, nil
}

// stackError shows a script error as its stack trace.
type stackError struct {
	stack string
	err   error
}

func (e *stackError) Error() string { return e.stack }

func (e *stackError) Unwrap() error { return e.err }

// describe prefers the script's stack trace for script errors. It must run
// inside a scope for the exception's context.
func describe(err error) error {
	var je *jsrt.Error
	if !errors.As(err, &je) || !je.Exception.IsValid() {
		return err
	}
	stack, serr := je.Exception.Get("stack")
	if serr != nil {
		return err
	}
	if t, terr := stack.Type(); terr != nil || t != abi.TypeString {
		return err
	}
	text, serr := stack.ToString()
	if serr != nil || text == "" {
		return err
	}
	return &stackError{stack: text, err: err}
}
