package jsrt

import (
	"testing"

	"github.com/6over3/jsrt/abi"
)

func TestSourceContext_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  SourceContext
		want SourceContext
	}{
		{"inc", SourceContextFrom(4).Inc(), SourceContextFrom(5)},
		{"dec", SourceContextFrom(4).Dec(), SourceContextFrom(3)},
		{"add", SourceContextFrom(10).Add(5), SourceContextFrom(15)},
		{"sub", SourceContextFrom(10).Sub(10), SourceContextFrom(0)},
		{"none inc", SourceContextNone.Inc(), SourceContextFrom(0)},
		{"zero dec", SourceContextFrom(0).Dec(), SourceContextNone},
		{"all ones", SourceContextFrom(^uintptr(0)), SourceContextNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Equal(tt.want) {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestSourceContext_Raw(t *testing.T) {
	if SourceContextNone.IsValid() {
		t.Error("SourceContextNone is valid")
	}
	if got := SourceContextNone.raw(); got != abi.SourceContextNone {
		t.Errorf("raw none = %#x", got)
	}
	c := SourceContextFrom(0)
	if !c.IsValid() || c.Value() != 0 || c.raw() != 0 {
		t.Errorf("cookie 0: valid=%v value=%d raw=%d", c.IsValid(), c.Value(), c.raw())
	}
	if got := sourceContextOf(abi.SourceContext(77)); got.Value() != 77 {
		t.Errorf("sourceContextOf(77) = %s", got)
	}
	if got := sourceContextOf(abi.SourceContextNone); got.IsValid() {
		t.Errorf("sourceContextOf(none) = %s", got)
	}
}

func TestSourceContext_ValueOfNonePanics(t *testing.T) {
	mustPanic(t, func() { SourceContextNone.Value() })
}
