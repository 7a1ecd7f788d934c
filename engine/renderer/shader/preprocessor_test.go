package shader

import (
	"strings"
	"testing"
)

func TestPreprocessorConditionals(t *testing.T) {
	src := strings.Join([]string{
		"a",
		"//@lumen:ifdef PS_PIPELINE_TRANSPARENT",
		"transparent",
		"//@lumen:else",
		"opaque",
		"//@lumen:endif",
		"//@lumen:ifndef VS_SHADOW_PASS",
		"lit",
		"//@lumen:endif",
		"z",
	}, "\n")

	tests := []struct {
		name   string
		macros []string
		want   []string
		absent []string
	}{
		{"no macros", nil, []string{"a", "opaque", "lit", "z"}, []string{"transparent"}},
		{"transparent", []string{"PS_PIPELINE_TRANSPARENT"}, []string{"transparent", "lit"}, []string{"opaque"}},
		{"shadow", []string{"VS_SHADOW_PASS"}, []string{"opaque"}, []string{"lit", "transparent"}},
	}
	p := NewPreprocessor(nil, nil)
	for _, tt := range tests {
		out, err := p.Process(src, tt.macros)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		lines := strings.Split(out, "\n")
		for _, w := range tt.want {
			if !containsLine(lines, w) {
				t.Errorf("%s: output missing %q:\n%s", tt.name, w, out)
			}
		}
		for _, a := range tt.absent {
			if containsLine(lines, a) {
				t.Errorf("%s: output should not contain %q:\n%s", tt.name, a, out)
			}
		}
	}
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) == want {
			return true
		}
	}
	return false
}

func TestPreprocessorNestedBlocks(t *testing.T) {
	src := strings.Join([]string{
		"//@lumen:ifdef A",
		"//@lumen:ifdef B",
		"ab",
		"//@lumen:else",
		"a-not-b",
		"//@lumen:endif",
		"//@lumen:endif",
	}, "\n")
	p := NewPreprocessor(nil, nil)

	out, err := p.Process(src, []string{"B"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("outer block disabled but output = %q", out)
	}
	out, _ = p.Process(src, []string{"A"})
	if strings.TrimSpace(out) != "a-not-b" {
		t.Errorf("output = %q, want a-not-b", out)
	}
}

func TestPreprocessorIncludesAndConstants(t *testing.T) {
	p := NewPreprocessor(
		map[string]string{
			"outer": "//@lumen:include inner\nstruct Outer { x: u32 }",
			"inner": "struct Inner { y: u32 }",
		},
		map[string]string{"TILE_SIZE": "16u"},
	)
	out, err := p.Process("//@lumen:include outer\n//@lumen:const TILE_SIZE", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"struct Inner", "struct Outer", "const TILE_SIZE = 16u;"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPreprocessorErrors(t *testing.T) {
	cyclic := NewPreprocessor(map[string]string{"self": "//@lumen:include self"}, nil)
	tests := []struct {
		name string
		p    *Preprocessor
		src  string
	}{
		{"unclosed", NewPreprocessor(nil, nil), "//@lumen:ifdef A\nx"},
		{"stray endif", NewPreprocessor(nil, nil), "//@lumen:endif"},
		{"stray else", NewPreprocessor(nil, nil), "//@lumen:else"},
		{"double else", NewPreprocessor(nil, nil), "//@lumen:ifdef A\n//@lumen:else\n//@lumen:else\n//@lumen:endif"},
		{"unknown include", NewPreprocessor(nil, nil), "//@lumen:include missing"},
		{"unknown const", NewPreprocessor(nil, nil), "//@lumen:const MISSING"},
		{"unknown directive", NewPreprocessor(nil, nil), "//@lumen:define X"},
		{"missing argument", NewPreprocessor(nil, nil), "//@lumen:ifdef"},
		{"include cycle", cyclic, "//@lumen:include self"},
	}
	for _, tt := range tests {
		if _, err := tt.p.Process(tt.src, nil); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}
