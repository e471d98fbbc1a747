// Package remotetest provides in-memory implementations of the remote
// interfaces for tests.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

// Data is an in-memory remote.DataAPI. Methods fail with the error set by
// Fail until it is cleared with Fail(method, nil).
type Data struct {
	mu          sync.Mutex
	products    map[int64]domain.Product
	profiles    map[string]domain.Profile
	subscribers map[string]bool
	nextID      int64
	nextImageID int64
	calls       map[string]int
	errs        map[string]error

	Admin bool
	Stats domain.AdminStats
}

var _ remote.DataAPI = (*Data)(nil)

func NewData() *Data {
	return &Data{
		products:    make(map[int64]domain.Product),
		profiles:    make(map[string]domain.Profile),
		subscribers: make(map[string]bool),
		calls:       make(map[string]int),
		errs:        make(map[string]error),
	}
}

// Fail makes method return err. A nil err clears the failure.
func (d *Data) Fail(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, method)
		return
	}
	d.errs[method] = err
}

// Calls returns how many times method was invoked.
func (d *Data) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// PutProduct stores p with the given image URLs and returns its id.
func (d *Data) PutProduct(p domain.Product, imageURLs ...string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.ID == 0 {
		d.nextID++
		p.ID = d.nextID
	} else if p.ID > d.nextID {
		d.nextID = p.ID
	}
	p.Images = d.imagesLocked(p.ID, imageURLs)
	d.products[p.ID] = p
	return p.ID
}

func (d *Data) PutProfile(p domain.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

func (d *Data) Subscribed(email string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscribers[strings.ToLower(email)]
}

func (d *Data) enter(method string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[method]++
	return d.errs[method]
}

func (d *Data) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := d.enter("ListProducts"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Product, 0, len(d.products))
	for _, p := range d.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Data) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if err := d.enter("GetProduct"); err != nil {
		return domain.Product{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, remote.ErrNotFound)
	}
	return p, nil
}

func (d *Data) CreateProductWithImages(ctx context.Context, in domain.ProductInput) (int64, error) {
	if err := d.enter("CreateProductWithImages"); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	p := applyPatch(domain.Product{ID: id}, in.Patch())
	p.Images = d.imagesLocked(id, in.ImageURLs)
	d.products[id] = p
	return id, nil
}

func (d *Data) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) error {
	if err := d.enter("UpdateProduct"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.products[id]
	if !ok {
		return nil
	}
	d.products[id] = applyPatch(p, patch)
	return nil
}

func (d *Data) ReplaceProductImages(ctx context.Context, id int64, imageURLs []string) error {
	if err := d.enter("ReplaceProductImages"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.products[id]
	if !ok {
		return &remote.APIError{Status: http.StatusConflict, Code: "23503", Message: "product does not exist"}
	}
	p.Images = d.imagesLocked(id, imageURLs)
	d.products[id] = p
	return nil
}

func (d *Data) DeleteProduct(ctx context.Context, id int64) error {
	if err := d.enter("DeleteProduct"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.products, id)
	return nil
}

func (d *Data) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	if err := d.enter("GetProfile"); err != nil {
		return domain.Profile{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[userID]
	if !ok {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, remote.ErrNotFound)
	}
	return p, nil
}

func (d *Data) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.Profile, error) {
	if err := d.enter("UpdateProfile"); err != nil {
		return domain.Profile{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[userID]
	if !ok {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, remote.ErrNotFound)
	}
	if patch.Name != nil {
		p.Name = patch.Name
	}
	if patch.Slug != nil {
		p.Slug = patch.Slug
	}
	if patch.Bio != nil {
		p.Bio = patch.Bio
	}
	if patch.ExtraInfo != nil {
		p.ExtraInfo = patch.ExtraInfo
	}
	p.UpdatedAt = patch.UpdatedAt
	d.profiles[userID] = p
	return p, nil
}

func (d *Data) IsAdmin(ctx context.Context) (bool, error) {
	if err := d.enter("IsAdmin"); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Admin, nil
}

func (d *Data) AdminStats(ctx context.Context) (domain.AdminStats, error) {
	if err := d.enter("AdminStats"); err != nil {
		return domain.AdminStats{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := d.Stats
	stats.ProductsCount = int64(len(d.products))
	return stats, nil
}

func (d *Data) SubscribeNewsletter(ctx context.Context, email string) error {
	if err := d.enter("SubscribeNewsletter"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(email)
	if d.subscribers[key] {
		return &remote.APIError{
			Status:  http.StatusConflict,
			Code:    "23505",
			Message: `duplicate key value violates unique constraint "newsletter_subscriptions_email_key"`,
		}
	}
	d.subscribers[key] = true
	return nil
}

func (d *Data) imagesLocked(productID int64, urls []string) []domain.ProductImage {
	images := make([]domain.ProductImage, 0, len(urls))
	for _, u := range urls {
		d.nextImageID++
		images = append(images, domain.ProductImage{ID: d.nextImageID, ProductID: productID, ImageURL: u})
	}
	return images
}

func applyPatch(p domain.Product, patch domain.ProductPatch) domain.Product {
	p.Name = patch.Name
	p.Description = patch.Description
	p.Price = patch.Price
	p.DiscountPrice = patch.DiscountPrice
	p.Slug = patch.Slug
	p.Language = patch.Language
	p.Rating = patch.Rating
	p.Category = patch.Category
	p.Badge = patch.Badge
	p.Pages = patch.Pages
	p.CheckoutURL = patch.CheckoutURL
	p.AccessURL = patch.AccessURL
	p.ShareURL = patch.ShareURL
	return p
}

// Bucket is an in-memory remote.Bucket.
type Bucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	uploads int
	failAt  int
	failErr error
	removed []string

	BaseURL string
}

var _ remote.Bucket = (*Bucket)(nil)

func NewBucket() *Bucket {
	return &Bucket{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		BaseURL: "https://cdn.test/product-images",
	}
}

// FailUpload makes the n-th upload (1-based, counted from now) return err.
func (b *Bucket) FailUpload(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAt = b.uploads + n
	b.failErr = err
}

func (b *Bucket) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	b.mu.Lock()
	b.uploads++
	if b.failErr != nil && b.uploads == b.failAt {
		err := b.failErr
		b.mu.Unlock()
		return err
	}
	if _, exists := b.objects[path]; exists {
		b.mu.Unlock()
		return &remote.APIError{Status: http.StatusConflict, Code: "Duplicate", Message: "The resource already exists"}
	}
	b.mu.Unlock()

	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = body
	b.types[path] = contentType
	return nil
}

func (b *Bucket) PublicURL(path string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/" + path
}

func (b *Bucket) Remove(ctx context.Context, paths ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		delete(b.objects, p)
		b.removed = append(b.removed, p)
	}
	return nil
}

// Uploads returns how many uploads were attempted.
func (b *Bucket) Uploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads
}

// Objects returns the stored paths in sorted order.
func (b *Bucket) Objects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for p := range b.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ContentType returns the type stored with path.
func (b *Bucket) ContentType(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.types[path]
}

func (b *Bucket) Removed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removed...)
}
