package pathutil

import (
	"testing"
)

func TestToUnix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a\b\c`, "a/b/c"},
		{"a/b/c", "a/b/c"},
		{`C:\src\app.ts`, "C:/src/app.ts"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ToUnix(tt.in); got != tt.want {
			t.Errorf("ToUnix(%q) = %q, want %q", tt.in, got, tt.want)
		}
		// idempotence
		if got := ToUnix(ToUnix(tt.in)); got != ToUnix(tt.in) {
			t.Errorf("ToUnix is not idempotent for %q", tt.in)
		}
	}
}

func TestNormalizeAlias(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Alias
	}{
		{"bare string", "./src/utils", Alias{Path: "./src/utils"}},
		{"record", map[string]any{"path": "./node_modules/navbar", "dist": "pages/aliasComponent/"}, Alias{Path: "./node_modules/navbar", Dist: "pages/aliasComponent/"}},
		{"record without dist", map[string]any{"path": "./lib"}, Alias{Path: "./lib"}},
		{"already normalized", Alias{Path: "./lib", Dist: "x"}, Alias{Path: "./lib", Dist: "x"}},
		{"garbage", 42, Alias{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAlias(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeAlias(%v) = %+v, want %+v", tt.in, got, tt.want)
			}
			if again := NormalizeAlias(got); again != got {
				t.Errorf("NormalizeAlias is not idempotent for %v", tt.in)
			}
		})
	}
}

func TestPromoteRelative(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"foo/bar", "./foo/bar"},
		{"./foo", "./foo"},
		{"../foo", "../foo"},
		{"/abs/foo", "/abs/foo"},
		{"", ""},
		{`npm\lodash\index.js`, "./npm/lodash/index.js"},
	}
	for _, tt := range tests {
		if got := PromoteRelative(tt.in); got != tt.want {
			t.Errorf("PromoteRelative(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReconcileExt(t *testing.T) {
	tests := []struct {
		p    string
		ext  string
		want string
	}{
		{"dist/utils/index", ".js", "dist/utils/index.js"},
		{"dist/utils/index.es6", ".js", "dist/utils/index.js"},
		{"dist/style.less", ".wxss", "dist/style.wxss"},
		{"dist/app.js", ".js", "dist/app.js"},
		{"dist/app.js", "", "dist/app.js"},
		{"dist/app", "", "dist/app"},
	}
	for _, tt := range tests {
		if got := ReconcileExt(tt.p, tt.ext); got != tt.want {
			t.Errorf("ReconcileExt(%q, %q) = %q, want %q", tt.p, tt.ext, got, tt.want)
		}
	}
}
