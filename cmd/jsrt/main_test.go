package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/jsrt"
)

func runCLI(t *testing.T, opts options, stdin string) (string, string, error) {
	t.Helper()
	opts.log = zap.NewNop()
	opts.surface = "embedded"
	var stdout, stderr bytes.Buffer
	err := run(opts, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hello.js")
	if err := os.WriteFile(script, []byte(`console.log("hello", 1 + 1); console.error("to stderr");`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dep.mjs"), []byte(`export const word = "module";`), 0o644); err != nil {
		t.Fatal(err)
	}
	entry := filepath.Join(dir, "entry.mjs")
	if err := os.WriteFile(entry, []byte(`import { word } from "./dep.mjs"; print(word + " ok");`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		opts       options
		stdin      string
		wantOut    string
		wantErrOut string
	}{
		{"expression", options{expr: "6 * 7"}, "", "42\n", ""},
		{"string expression", options{expr: "'a' + 'b'"}, "", "\"ab\"\n", ""},
		{"file", options{files: []string{script}}, "", "hello 2\n", "to stderr\n"},
		{"module", options{module: entry}, "", "module ok\n", ""},
		{"stdin", options{}, "print([1, 2].length)", "2\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, err := runCLI(t, tt.opts, tt.stdin)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if out != tt.wantOut {
				t.Errorf("stdout = %q, want %q", out, tt.wantOut)
			}
			if errOut != tt.wantErrOut {
				t.Errorf("stderr = %q, want %q", errOut, tt.wantErrOut)
			}
		})
	}
}

func TestRun_ScriptError(t *testing.T) {
	_, _, err := runCLI(t, options{expr: "throw new Error('bad input')"}, "")
	if err == nil {
		t.Fatal("run succeeded")
	}
	if !strings.Contains(err.Error(), "bad input") {
		t.Errorf("error %q lacks the exception message", err)
	}
}

func TestRun_UnknownSurface(t *testing.T) {
	var out bytes.Buffer
	err := run(options{surface: "nope", expr: "1", log: zap.NewNop()}, strings.NewReader(""), &out, &out)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("run = %v, want unknown surface error", err)
	}
}

func newTestSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	s, _, err := openSurface(t.Context(), options{surface: "embedded", log: zap.NewNop()})
	if err != nil {
		t.Fatal(err)
	}
	rt, err := jsrt.NewRuntime(jsrt.WithSurface(s))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rt.Dispose() })

	var buf bytes.Buffer
	sess := newSession(rt, &buf, &buf)
	if _, err := sess.newContext(); err != nil {
		t.Fatal(err)
	}
	return sess, &buf
}

func TestSession_Commands(t *testing.T) {
	sess, _ := newTestSession(t)

	mustEval := func(src, want string) {
		t.Helper()
		got, err := sess.eval(src, "<test>")
		if err != nil {
			t.Fatalf("eval %q: %v", src, err)
		}
		if got != want {
			t.Errorf("eval %q = %q, want %q", src, got, want)
		}
	}
	mustCommand := func(line, want string) {
		t.Helper()
		got, ok, err := sess.command(line)
		if !ok || err != nil {
			t.Fatalf("command %q: handled=%v err=%v", line, ok, err)
		}
		if want != "" && got != want {
			t.Errorf("command %q = %q, want %q", line, got, want)
		}
	}

	mustEval("var who = 'first'; who", `"first"`)
	mustCommand(".new", "context 1")
	mustEval("typeof who", `"undefined"`)
	mustCommand(".contexts", "  0\n* 1")
	mustCommand(".use 0", "context 0")
	mustEval("who", `"first"`)
	mustCommand(".gc", "collected")
	mustCommand(".mem", "")

	if _, ok, _ := sess.command("1 + 1"); ok {
		t.Error("expression handled as a command")
	}
	if _, ok, err := sess.command(".use 9"); !ok || err == nil {
		t.Errorf(".use 9 = handled %v, err %v", ok, err)
	}
	if _, ok, err := sess.command(".bogus"); !ok || err == nil {
		t.Errorf(".bogus = handled %v, err %v", ok, err)
	}
}

func TestReplModel_Evaluate(t *testing.T) {
	sess, _ := newTestSession(t)
	m := newReplModel(sess)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m.input.SetValue("print('side'); 40 + 2")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	if !m.busy {
		t.Error("model not busy while evaluating")
	}
	msg, ok := cmd().(evalMsg)
	if !ok {
		t.Fatal("command did not produce an evalMsg")
	}
	if msg.output != "side\n" || msg.result != "42" || msg.err != nil {
		t.Errorf("evalMsg = %+v", msg)
	}
	m.Update(msg)
	if m.busy {
		t.Error("model still busy")
	}
	transcript := strings.Join(m.lines, "\n")
	for _, want := range []string{"40 + 2", "side", "42"} {
		if !strings.Contains(transcript, want) {
			t.Errorf("transcript %q lacks %q", transcript, want)
		}
	}
	if len(m.history) != 1 {
		t.Errorf("history = %v", m.history)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := m.input.Value(); got != "print('side'); 40 + 2" {
		t.Errorf("history recall = %q", got)
	}

	m.input.SetValue(".exit")
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd == nil {
		t.Error(".exit did not quit")
	}
}
