package slug

import "testing"

func TestFrom(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Programação em Go!", "programacao-em-go"},
		{"  Ebook -- Avançado  ", "ebook-avancado"},
		{"Guia Prático 2024", "guia-pratico-2024"},
		{"ÁÉÍÓÚ ç ñ", "aeiou-c-n"},
		{"!!!", ""},
		{"already-a-slug", "already-a-slug"},
	}
	for _, c := range cases {
		if got := From(c.in); got != c.want {
			t.Fatalf("From(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid("go-book") {
		t.Fatalf("go-book should be valid")
	}
	if Valid("Go Book") || Valid("") {
		t.Fatalf("non-slug input accepted")
	}
}
