package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestContext_GetVersion(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("1.0.0", "2026-01-01"), want: "1.0.0"},
		{name: "pre-release tag", ctx: NewContext("1.0.0-beta.1", ""), want: "1.0.0-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.GetVersion(); got != tt.want {
				t.Errorf("Context.GetVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_GetBuildDate(t *testing.T) {
	var nilCtx *Context
	if got := nilCtx.GetBuildDate(); got != UnknownValue {
		t.Errorf("nil Context.GetBuildDate() = %v, want %v", got, UnknownValue)
	}
	if got := NewContext("1.0.0", "").GetBuildDate(); got != UnknownValue {
		t.Errorf("empty Context.GetBuildDate() = %v, want %v", got, UnknownValue)
	}
	if got := NewContext("1.0.0", "2026-01-01").GetBuildDate(); got != "2026-01-01" {
		t.Errorf("Context.GetBuildDate() = %v, want 2026-01-01", got)
	}
}

func TestContext_String(t *testing.T) {
	got := NewContext("1.2.0", "2026-03-01").String()
	for _, want := range []string{"imagebackfill 1.2.0", "built 2026-03-01", runtime.Version()} {
		if !strings.Contains(got, want) {
			t.Errorf("Context.String() = %q, missing %q", got, want)
		}
	}

	var nilCtx *Context
	if got := nilCtx.String(); !strings.Contains(got, "imagebackfill unknown") {
		t.Errorf("nil Context.String() = %q", got)
	}
}
