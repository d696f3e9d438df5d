package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	got := Sum([]byte("hello"))
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}

func TestContent_TypeMatters(t *testing.T) {
	if Content("TEXT", "https://go.dev") == Content("LINK", "https://go.dev") {
		t.Error("different note types should not share a fingerprint")
	}
}

func TestContent_IgnoresSurroundingWhitespace(t *testing.T) {
	if Content("text", "  body\n") != Content("TEXT", "body") {
		t.Error("fingerprint should ignore case of type and outer whitespace")
	}
}
