package keys

import (
	"errors"
	"testing"

	tiercache "github.com/eugener/tiercache/internal"
)

func TestGenerateAndParse(t *testing.T) {
	t.Parallel()
	k := Generate("post", "123")
	if k != "post:123" {
		t.Fatalf("Generate = %q, want %q", k, "post:123")
	}
	typ, id := Parse(k)
	if typ != "post" || id != "123" {
		t.Errorf("Parse = (%q, %q), want (post, 123)", typ, id)
	}

	typ, id = Parse("list:recent:page:2")
	if typ != "list" || id != "recent:page:2" {
		t.Errorf("Parse nested = (%q, %q)", typ, id)
	}

	typ, id = Parse("bare")
	if typ != "bare" || id != "" {
		t.Errorf("Parse bare = (%q, %q)", typ, id)
	}
}

func TestScoped(t *testing.T) {
	t.Parallel()
	s := Scoped("content", "post:1")
	if s != "content/post:1" {
		t.Fatalf("Scoped = %q", s)
	}
	k, ok := Unscope("content", s)
	if !ok || k != "post:1" {
		t.Errorf("Unscope = (%q, %v)", k, ok)
	}
	if _, ok := Unscope("media", s); ok {
		t.Error("Unscope should reject a foreign namespace")
	}
}

func TestCompile_Anchored(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"content:post:*", "content:post:123", true},
		{"content:post:*", "content:post:456:draft", true},
		{"content:post:*", "content:page:789", false},
		{"content:post:*", "xcontent:post:1", false},
		{"post", "post:1", false},
		{"post", "post", true},
		{"*:1", "post:1", true},
		{"*:1", "post:10", false},
		{"content:*", "content:list:recent", true},
		{"item:?", "item:7", true},
		{"item:?", "item:77", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			t.Parallel()
			m, err := Compile(tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			if got := m.Match(tt.key); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	t.Parallel()
	for _, p := range []string{"", "bad\x00pattern", "[unterminated"} {
		if _, err := Compile(p); !errors.Is(err, tiercache.ErrValidation) {
			t.Errorf("Compile(%q) err = %v, want ErrValidation", p, err)
		}
	}
}

func TestLiteral(t *testing.T) {
	t.Parallel()
	if !Literal("post:1") {
		t.Error("post:1 should be literal")
	}
	if Literal("post:*") {
		t.Error("post:* should not be literal")
	}
}
