package domain

import (
	"strings"
	"time"
)

type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// Identity is the authenticated principal as reported by the auth service.
type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Confirmed reports whether the email address has been verified.
func (i Identity) Confirmed() bool {
	return i.EmailConfirmedAt != nil && !i.EmailConfirmedAt.IsZero()
}

// DisplayName returns the name given at sign-up, falling back to the email.
func (i Identity) DisplayName() string {
	if name, ok := i.UserMetadata["name"].(string); ok && strings.TrimSpace(name) != "" {
		return name
	}
	return i.Email
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type ProductImage struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	ImageURL  string `json:"image_url"`
}

type Product struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Price         float64        `json:"price"`
	DiscountPrice *float64       `json:"discount_price"`
	Slug          *string        `json:"slug"`
	Language      string         `json:"language"`
	Rating        float64        `json:"rating"`
	Category      string         `json:"category"`
	Badge         *string        `json:"badge"`
	Pages         string         `json:"pages"`
	Images        []ProductImage `json:"product_images"`
	CheckoutURL   *string        `json:"checkout_url"`
	AccessURL     *string        `json:"access_url"`
	ShareURL      *string        `json:"share_url"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HasDiscount reports whether a discount price below the list price is set.
func (p Product) HasDiscount() bool {
	return p.DiscountPrice != nil && *p.DiscountPrice > 0 && *p.DiscountPrice < p.Price
}

// EffectivePrice is the price a buyer pays.
func (p Product) EffectivePrice() float64 {
	if p.HasDiscount() {
		return *p.DiscountPrice
	}
	return p.Price
}

// ImageURLs returns the image URLs in their stored order.
func (p Product) ImageURLs() []string {
	out := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		out = append(out, img.ImageURL)
	}
	return out
}

// ProductInput is the create payload. Image URLs are attached in the same call.
type ProductInput struct {
	Name          string   `json:"name" validate:"required,max=200"`
	Description   string   `json:"description" validate:"required"`
	Price         float64  `json:"price" validate:"gte=0"`
	DiscountPrice *float64 `json:"discount_price" validate:"omitempty,gte=0"`
	Slug          *string  `json:"slug"`
	Language      string   `json:"language"`
	Rating        float64  `json:"rating" validate:"gte=0,lte=5"`
	Category      string   `json:"category" validate:"required"`
	Badge         *string  `json:"badge"`
	Pages         string   `json:"pages"`
	CheckoutURL   *string  `json:"checkout_url" validate:"omitempty,url"`
	AccessURL     *string  `json:"access_url" validate:"omitempty,url"`
	ShareURL      *string  `json:"share_url" validate:"omitempty,url"`
	ImageURLs     []string `json:"image_urls" validate:"dive,url"`
}

// Patch drops the image list, which is never part of a table update.
func (in ProductInput) Patch() ProductPatch {
	return ProductPatch{
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		DiscountPrice: in.DiscountPrice,
		Slug:          in.Slug,
		Language:      in.Language,
		Rating:        in.Rating,
		Category:      in.Category,
		Badge:         in.Badge,
		Pages:         in.Pages,
		CheckoutURL:   in.CheckoutURL,
		AccessURL:     in.AccessURL,
		ShareURL:      in.ShareURL,
	}
}

// ProductPatch is the update payload for the products table.
type ProductPatch struct {
	Name          string   `json:"name" validate:"required,max=200"`
	Description   string   `json:"description" validate:"required"`
	Price         float64  `json:"price" validate:"gte=0"`
	DiscountPrice *float64 `json:"discount_price" validate:"omitempty,gte=0"`
	Slug          *string  `json:"slug"`
	Language      string   `json:"language"`
	Rating        float64  `json:"rating" validate:"gte=0,lte=5"`
	Category      string   `json:"category" validate:"required"`
	Badge         *string  `json:"badge"`
	Pages         string   `json:"pages"`
	CheckoutURL   *string  `json:"checkout_url" validate:"omitempty,url"`
	AccessURL     *string  `json:"access_url" validate:"omitempty,url"`
	ShareURL      *string  `json:"share_url" validate:"omitempty,url"`
}

type Profile struct {
	ID        string         `json:"id"`
	Name      *string        `json:"name"`
	Email     *string        `json:"email"`
	Slug      *string        `json:"slug"`
	Bio       *string        `json:"bio"`
	ExtraInfo map[string]any `json:"extra_info"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ProfilePatch carries only the columns a user may change. Nil fields are left untouched.
type ProfilePatch struct {
	Name      *string        `json:"name,omitempty" validate:"omitempty,max=120"`
	Slug      *string        `json:"slug,omitempty" validate:"omitempty,max=120"`
	Bio       *string        `json:"bio,omitempty" validate:"omitempty,max=2000"`
	ExtraInfo map[string]any `json:"extra_info,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type AdminStats struct {
	ProductsCount     int64 `json:"products_count"`
	InteractionsCount int64 `json:"interactions_count"`
	UsersCount        int64 `json:"users_count"`
	AdminsCount       int64 `json:"admins_count"`
}

type NewsletterSubscription struct {
	Email string `json:"email" validate:"required,email"`
}
