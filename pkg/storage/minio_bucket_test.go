package storage

import "testing"

func TestPublicBase(t *testing.T) {
	cases := []struct {
		endpoint, public string
		ssl              bool
		want             string
	}{
		{"localhost:9000", "", false, "http://localhost:9000"},
		{"s3.example.com", "", true, "https://s3.example.com"},
		{"localhost:9000", "https://cdn.example.com/", false, "https://cdn.example.com"},
	}
	for _, c := range cases {
		if got := publicBase(c.endpoint, c.public, c.ssl); got != c.want {
			t.Fatalf("publicBase(%q, %q, %v) = %q, want %q", c.endpoint, c.public, c.ssl, got, c.want)
		}
	}
}

func TestObjectURL(t *testing.T) {
	got := objectURL("https://cdn.example.com", "product-images", "/products/1-abc.png")
	want := "https://cdn.example.com/product-images/products/1-abc.png"
	if got != want {
		t.Fatalf("objectURL = %q, want %q", got, want)
	}
}
