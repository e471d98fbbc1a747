package mutation

import (
	"context"
	"time"

	"github.com/Izileth/lp-ebook/internal/form"
	"github.com/Izileth/lp-ebook/internal/session"
	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
	"github.com/Izileth/lp-ebook/pkg/slug"
)

// ProductUpdate targets one product. Images are changed with ImageUpdate.
type ProductUpdate struct {
	ID    int64
	Patch domain.ProductPatch
}

// ImageUpdate replaces the full, ordered image list of a product.
type ImageUpdate struct {
	ID        int64
	ImageURLs []string
}

type imageList struct {
	ImageURLs []string `json:"image_urls" validate:"dive,url"`
}

var now = time.Now

// CreateProduct creates a product and attaches its images in the same call.
// It returns the new product id.
func CreateProduct(data remote.DataAPI) *Mutation[domain.ProductInput, int64] {
	return New("create_product", func(ctx context.Context, in domain.ProductInput) (int64, error) {
		if data == nil {
			return 0, remote.ErrUnavailable
		}
		if err := form.Validate(in); err != nil {
			return 0, err
		}
		return data.CreateProductWithImages(ctx, in)
	})
}

func UpdateProduct(data remote.DataAPI) *Mutation[ProductUpdate, struct{}] {
	return New("update_product", func(ctx context.Context, u ProductUpdate) (struct{}, error) {
		if data == nil {
			return struct{}{}, remote.ErrUnavailable
		}
		if err := form.Validate(u.Patch); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, data.UpdateProduct(ctx, u.ID, u.Patch)
	})
}

func UpdateProductImages(data remote.DataAPI) *Mutation[ImageUpdate, struct{}] {
	return New("update_product_images", func(ctx context.Context, u ImageUpdate) (struct{}, error) {
		if data == nil {
			return struct{}{}, remote.ErrUnavailable
		}
		if err := form.Validate(imageList{ImageURLs: u.ImageURLs}); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, data.ReplaceProductImages(ctx, u.ID, u.ImageURLs)
	})
}

// DeleteProduct removes a product. Its images go with it on the server.
func DeleteProduct(data remote.DataAPI) *Mutation[int64, struct{}] {
	return New("delete_product", func(ctx context.Context, id int64) (struct{}, error) {
		if data == nil {
			return struct{}{}, remote.ErrUnavailable
		}
		return struct{}{}, data.DeleteProduct(ctx, id)
	})
}

// UpdateProfile writes the signed-in user's profile and returns the stored
// row. It stamps updated_at and normalizes the slug.
func UpdateProfile(data remote.DataAPI, sessions *session.Store) *Mutation[domain.ProfilePatch, domain.Profile] {
	return New("update_profile", func(ctx context.Context, patch domain.ProfilePatch) (domain.Profile, error) {
		if data == nil {
			return domain.Profile{}, remote.ErrUnavailable
		}
		var identity *domain.Identity
		if sessions != nil {
			identity = sessions.Identity()
		}
		if identity == nil {
			return domain.Profile{}, remote.ErrNoSession
		}
		if patch.Slug != nil {
			s := slug.From(*patch.Slug)
			patch.Slug = &s
		}
		if err := form.Validate(patch); err != nil {
			return domain.Profile{}, err
		}
		patch.UpdatedAt = now().UTC()
		return data.UpdateProfile(ctx, identity.ID, patch)
	})
}

// SubscribeNewsletter adds an email to the newsletter. A repeated address
// surfaces the backend's conflict message.
func SubscribeNewsletter(data remote.DataAPI) *Mutation[string, struct{}] {
	return New("subscribe_newsletter", func(ctx context.Context, email string) (struct{}, error) {
		if data == nil {
			return struct{}{}, remote.ErrUnavailable
		}
		if err := form.ValidateEmail(email); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, data.SubscribeNewsletter(ctx, email)
	})
}
