// Package form turns free-text admin and profile input into validated
// write payloads.
package form

import (
	"strings"

	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/slug"
)

// ProductForm holds product fields as typed by an operator. Numeric fields
// accept locale formats such as "R$ 29,90". ImageURLs is one URL per line.
type ProductForm struct {
	Name          string
	Description   string
	Price         string
	DiscountPrice string
	Slug          string
	Language      string
	Rating        string
	Category      string
	Badge         string
	Pages         string
	CheckoutURL   string
	AccessURL     string
	ShareURL      string
	ImageURLs     string
}

// FromProduct fills a form with an existing product, for editing.
func FromProduct(p domain.Product) ProductForm {
	f := ProductForm{
		Name:        p.Name,
		Description: p.Description,
		Price:       formatDecimal(p.Price),
		Language:    p.Language,
		Rating:      formatDecimal(p.Rating),
		Category:    p.Category,
		Pages:       p.Pages,
		Slug:        deref(p.Slug),
		Badge:       deref(p.Badge),
		CheckoutURL: deref(p.CheckoutURL),
		AccessURL:   deref(p.AccessURL),
		ShareURL:    deref(p.ShareURL),
		ImageURLs:   strings.Join(p.ImageURLs(), "\n"),
	}
	if p.DiscountPrice != nil {
		f.DiscountPrice = formatDecimal(*p.DiscountPrice)
	}
	return f
}

// Input builds the create payload. In strict mode unparseable numbers are
// field errors; otherwise they become 0.
func (f ProductForm) Input(strict bool) (domain.ProductInput, error) {
	verr := &ValidationError{}
	in := domain.ProductInput{
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		Price:       f.number(verr, "price", f.Price, strict),
		Language:    strings.TrimSpace(f.Language),
		Rating:      f.number(verr, "rating", f.Rating, strict),
		Category:    strings.TrimSpace(f.Category),
		Pages:       strings.TrimSpace(f.Pages),
		Badge:       optional(f.Badge),
		CheckoutURL: optional(f.CheckoutURL),
		AccessURL:   optional(f.AccessURL),
		ShareURL:    optional(f.ShareURL),
		ImageURLs:   splitLines(f.ImageURLs),
	}
	if strings.TrimSpace(f.DiscountPrice) != "" {
		v := f.number(verr, "discount_price", f.DiscountPrice, strict)
		in.DiscountPrice = &v
	}
	s := slug.From(f.Slug)
	if s == "" {
		s = slug.From(in.Name)
	}
	if s != "" {
		in.Slug = &s
	}
	collect(verr, validate.Struct(in))
	if err := verr.orNil(); err != nil {
		return domain.ProductInput{}, err
	}
	return in, nil
}

// Patch builds the update payload. The image list is not part of it.
func (f ProductForm) Patch(strict bool) (domain.ProductPatch, error) {
	f.ImageURLs = ""
	in, err := f.Input(strict)
	if err != nil {
		return domain.ProductPatch{}, err
	}
	return in.Patch(), nil
}

func (f ProductForm) number(verr *ValidationError, field, raw string, strict bool) float64 {
	if !strict {
		return ParseDecimal(raw)
	}
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	v, err := ParseDecimalStrict(raw)
	if err != nil {
		verr.add(field, "must be a number")
		return 0
	}
	return v
}

// ProfileForm holds the editable profile fields.
type ProfileForm struct {
	Name string
	Slug string
	Bio  string
}

// Patch builds the profile update. Empty name and slug are left unchanged;
// the bio is always written so it can be cleared.
func (f ProfileForm) Patch() (domain.ProfilePatch, error) {
	var p domain.ProfilePatch
	p.Name = optional(f.Name)
	if s := slug.From(f.Slug); s != "" {
		p.Slug = &s
	}
	bio := strings.TrimSpace(f.Bio)
	p.Bio = &bio
	if err := Validate(p); err != nil {
		return domain.ProfilePatch{}, err
	}
	return p, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
