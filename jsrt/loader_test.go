package jsrt

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func TestDecodeSource(t *testing.T) {
	const text = `export const s = "héllo";`
	utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	if err != nil {
		t.Fatal(err)
	}
	utf16be, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"plain", []byte(text)},
		{"utf-8 bom", append([]byte{0xEF, 0xBB, 0xBF}, text...)},
		{"utf-16le bom", utf16le},
		{"utf-16be bom", utf16be},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSource(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, []byte(text)) {
				t.Errorf("decoded %q", got)
			}
		})
	}
}

func TestResolveSlash(t *testing.T) {
	tests := []struct {
		referrer, specifier, want string
	}{
		{"", "./main.js", "main.js"},
		{"", "lib/a.js", "lib/a.js"},
		{"lib/a.js", "./b.js", "lib/b.js"},
		{"lib/a.js", "../c.js", "c.js"},
		{"lib/a.js", "pkg/d.js", "pkg/d.js"},
	}
	for _, tt := range tests {
		if got := resolveSlash(tt.referrer, tt.specifier); got != tt.want {
			t.Errorf("resolveSlash(%q, %q) = %q, want %q", tt.referrer, tt.specifier, got, tt.want)
		}
	}
}

func TestModuleLoader_FileSource(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) {
		t.Helper()
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	wide, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().
		Bytes([]byte(`export const greeting = "Hello";`))
	if err != nil {
		t.Fatal(err)
	}
	write("app/main.mjs", []byte(`import { greeting } from "./lib/greet.mjs"; export const out = greeting + ", disk";`))
	write("app/lib/greet.mjs", wide)

	rt := newRuntime(t)
	c := newContext(t, rt)
	got, err := RequestScopeValue(c, func() (string, error) {
		l, err := NewModuleLoader(c, FileSource{Dir: filepath.Join(dir, "app")})
		if err != nil {
			return "", err
		}
		ns, err := l.Run("main.mjs")
		if err != nil {
			return "", err
		}
		v, err := ns.Get("out")
		if err != nil {
			return "", err
		}
		return v.Text()
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello, disk" {
		t.Errorf("out = %q", got)
	}
}
