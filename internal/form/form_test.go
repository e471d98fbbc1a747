package form

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/Izileth/lp-ebook/pkg/domain"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	return verr.Fields()
}

func TestNormalizeDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"29,90", "29.90"},
		{"R$ 29,90", "29.90"},
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"49.9", "49.9"},
		{"-5", "-5"},
		{"abc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeDecimal(tc.in); got != tc.want {
			t.Fatalf("NormalizeDecimal(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseDecimalIsLenient(t *testing.T) {
	if v := ParseDecimal("29,90"); !near(v, 29.90) {
		t.Fatalf("ParseDecimal(29,90) = %v", v)
	}
	if v := ParseDecimal("abc"); v != 0 {
		t.Fatalf("ParseDecimal(abc) = %v, want 0", v)
	}
	if v := ParseDecimal(""); v != 0 {
		t.Fatalf("ParseDecimal(\"\") = %v, want 0", v)
	}
	if v := ParseDecimal("4,5 estrelas"); !near(v, 4.5) {
		t.Fatalf("ParseDecimal(4,5 estrelas) = %v", v)
	}
}

func TestParseDecimalStrict(t *testing.T) {
	v, err := ParseDecimalStrict("R$ 29,90")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !near(v, 29.90) {
		t.Fatalf("value = %v, want 29.90", v)
	}
	for _, in := range []string{"abc", "12abc", "  "} {
		if _, err := ParseDecimalStrict(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func validProductForm() ProductForm {
	return ProductForm{
		Name:          "Programação em Go",
		Description:   "Do zero ao deploy",
		Price:         "R$ 49,90",
		DiscountPrice: "39,90",
		Rating:        "4,8",
		Category:      "tech",
		Language:      "pt-BR",
		Pages:         "320",
		CheckoutURL:   "https://pay.example.com/go",
		ImageURLs:     "https://cdn.example.com/a.jpg\n\n https://cdn.example.com/b.jpg \n",
	}
}

func TestProductFormInput(t *testing.T) {
	in, err := validProductForm().Input(false)
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if in.Name != "Programação em Go" || !near(in.Price, 49.90) || !near(in.Rating, 4.8) {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.DiscountPrice == nil || !near(*in.DiscountPrice, 39.90) {
		t.Fatalf("discount = %v", in.DiscountPrice)
	}
	if in.Slug == nil || *in.Slug != "programacao-em-go" {
		t.Fatalf("slug = %v", in.Slug)
	}
	if in.Badge != nil {
		t.Fatalf("empty badge should stay nil, got %q", *in.Badge)
	}
	want := []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"}
	if !slices.Equal(in.ImageURLs, want) {
		t.Fatalf("image urls = %v, want %v", in.ImageURLs, want)
	}
}

func TestProductFormLenientDefaultsToZero(t *testing.T) {
	f := validProductForm()
	f.Price = "abc"
	in, err := f.Input(false)
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if in.Price != 0 {
		t.Fatalf("price = %v, want 0", in.Price)
	}
}

func TestProductFormStrictRejectsGarbage(t *testing.T) {
	f := validProductForm()
	f.Price = "abc"
	_, err := f.Input(true)
	if msg := fieldErrors(t, err)["price"]; msg != "must be a number" {
		t.Fatalf("price error = %q", msg)
	}
}

func TestProductFormRequiredFields(t *testing.T) {
	_, err := ProductForm{Price: "10"}.Input(false)
	fields := fieldErrors(t, err)
	for _, name := range []string{"name", "description", "category"} {
		if fields[name] != "is required" {
			t.Fatalf("%s error = %q, want \"is required\"", name, fields[name])
		}
	}
}

func TestProductFormRejectsBadURLs(t *testing.T) {
	f := validProductForm()
	f.ShareURL = "not a url"
	f.ImageURLs = "also not a url"
	_, err := f.Input(false)
	if msg := fieldErrors(t, err)["share_url"]; msg != "must be a valid URL" {
		t.Fatalf("share_url error = %q", msg)
	}
	if !strings.Contains(err.Error(), "image_urls[0]") {
		t.Fatalf("expected image_urls[0] in %q", err.Error())
	}
}

func TestProductFormPatchIgnoresImages(t *testing.T) {
	f := validProductForm()
	f.ImageURLs = "definitely not a url"
	patch, err := f.Patch(false)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patch.Category != "tech" {
		t.Fatalf("category = %q", patch.Category)
	}
}

func TestFromProductRoundTrip(t *testing.T) {
	discount := 19.9
	p := domain.Product{
		Name:          "Go",
		Description:   "Book",
		Price:         29.9,
		DiscountPrice: &discount,
		Category:      "tech",
		Images: []domain.ProductImage{
			{ImageURL: "https://cdn.example.com/1.jpg"},
			{ImageURL: "https://cdn.example.com/2.jpg"},
		},
	}
	in, err := FromProduct(p).Input(true)
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if !near(in.Price, 29.9) || in.DiscountPrice == nil || !near(*in.DiscountPrice, 19.9) {
		t.Fatalf("prices lost: %+v", in)
	}
	if !slices.Equal(in.ImageURLs, p.ImageURLs()) {
		t.Fatalf("image urls = %v, want %v", in.ImageURLs, p.ImageURLs())
	}
}

func TestProfileFormPatch(t *testing.T) {
	patch, err := ProfileForm{Name: " Ana ", Slug: "Ana Souza", Bio: ""}.Patch()
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patch.Name == nil || *patch.Name != "Ana" {
		t.Fatalf("name = %v", patch.Name)
	}
	if patch.Slug == nil || *patch.Slug != "ana-souza" {
		t.Fatalf("slug = %v", patch.Slug)
	}
	if patch.Bio == nil || *patch.Bio != "" {
		t.Fatalf("bio should be set to empty, got %v", patch.Bio)
	}

	empty, err := ProfileForm{}.Patch()
	if err != nil {
		t.Fatalf("empty patch: %v", err)
	}
	if empty.Name != nil || empty.Slug != nil {
		t.Fatalf("empty form should not set name or slug: %+v", empty)
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("ana@example.com"); err != nil {
		t.Fatalf("valid email rejected: %v", err)
	}
	if msg := fieldErrors(t, ValidateEmail("ana@"))["email"]; msg != "must be a valid email address" {
		t.Fatalf("email error = %q", msg)
	}
}
