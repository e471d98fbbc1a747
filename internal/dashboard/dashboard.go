// Package dashboard composes the admin product screens: the admin check,
// the stats panel, the product table and the product writes that refresh them.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Izileth/lp-ebook/internal/mutation"
	"github.com/Izileth/lp-ebook/internal/refresh"
	"github.com/Izileth/lp-ebook/internal/resource"
	"github.com/Izileth/lp-ebook/internal/upload"
	"github.com/Izileth/lp-ebook/internal/util"
	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

type Access string

const (
	AccessUnknown Access = "unknown"
	AccessGranted Access = "granted"
	AccessDenied  Access = "denied"
)

// ErrAccessDenied is returned by writes when the caller is not an administrator.
var ErrAccessDenied = errors.New("access denied")

type Dashboard struct {
	Flag     *resource.Resource[resource.NoKey, bool]
	Stats    *resource.Resource[resource.NoKey, domain.AdminStats]
	Products *resource.Resource[resource.NoKey, []domain.Product]
	Key      *refresh.Key

	Create *mutation.Mutation[domain.ProductInput, int64]
	Update *mutation.Mutation[mutation.ProductUpdate, struct{}]
	Images *mutation.Mutation[mutation.ImageUpdate, struct{}]
	Delete *mutation.Mutation[int64, struct{}]

	mu    sync.Mutex
	stops []func()
}

func New(data remote.DataAPI) *Dashboard {
	return &Dashboard{
		Flag:     resource.AdminFlag(data),
		Stats:    resource.AdminStats(data),
		Products: resource.Products(data),
		Key:      &refresh.Key{},
		Create:   mutation.CreateProduct(data),
		Update:   mutation.UpdateProduct(data),
		Images:   mutation.UpdateProductImages(data),
		Delete:   mutation.DeleteProduct(data),
	}
}

// Load checks the admin flag and, for administrators, loads stats and
// products concurrently. Both loads settle even when one of them fails.
func (d *Dashboard) Load(ctx context.Context) (Access, error) {
	if err := d.Flag.Load(ctx, resource.NoKey{}); err != nil {
		return AccessUnknown, err
	}
	if !d.isAdmin() {
		util.LoggerFromContext(ctx).Info("admin dashboard access denied")
		return AccessDenied, nil
	}
	var g errgroup.Group
	g.Go(func() error { return d.Stats.Load(ctx, resource.NoKey{}) })
	g.Go(func() error { return d.Products.Load(ctx, resource.NoKey{}) })
	return AccessGranted, g.Wait()
}

// Watch refetches stats and products after every successful write until
// ctx is done or Close is called.
func (d *Dashboard) Watch(ctx context.Context) {
	stopStats := d.Stats.Watch(ctx, d.Key)
	stopProducts := d.Products.Watch(ctx, d.Key)
	d.mu.Lock()
	d.stops = append(d.stops, stopStats, stopProducts)
	d.mu.Unlock()
}

func (d *Dashboard) Close() {
	d.mu.Lock()
	stops := d.stops
	d.stops = nil
	d.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	d.Flag.Close()
	d.Stats.Close()
	d.Products.Close()
}

func (d *Dashboard) CreateProduct(ctx context.Context, in domain.ProductInput) (int64, error) {
	if !d.isAdmin() {
		return 0, ErrAccessDenied
	}
	id, err := d.Create.Perform(ctx, in)
	if err != nil {
		return 0, err
	}
	d.Key.Bump()
	return id, nil
}

func (d *Dashboard) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) error {
	if !d.isAdmin() {
		return ErrAccessDenied
	}
	if _, err := d.Update.Perform(ctx, mutation.ProductUpdate{ID: id, Patch: patch}); err != nil {
		return err
	}
	d.Key.Bump()
	return nil
}

func (d *Dashboard) ReplaceImages(ctx context.Context, id int64, urls []string) error {
	if !d.isAdmin() {
		return ErrAccessDenied
	}
	if _, err := d.Images.Perform(ctx, mutation.ImageUpdate{ID: id, ImageURLs: urls}); err != nil {
		return err
	}
	d.Key.Bump()
	return nil
}

func (d *Dashboard) DeleteProduct(ctx context.Context, id int64) error {
	if !d.isAdmin() {
		return ErrAccessDenied
	}
	if _, err := d.Delete.Perform(ctx, id); err != nil {
		return err
	}
	d.Key.Bump()
	return nil
}

// CreateWithUploads uploads files through up and creates the product with
// the resulting image list.
func (d *Dashboard) CreateWithUploads(ctx context.Context, in domain.ProductInput, up *upload.Controller, files []upload.File) (int64, error) {
	if !d.isAdmin() {
		return 0, ErrAccessDenied
	}
	urls, err := up.Upload(ctx, files)
	if err != nil {
		return 0, err
	}
	in.ImageURLs = urls
	return d.CreateProduct(ctx, in)
}

// ReplaceImagesWithUploads appends uploaded files to the images already
// held by up and stores the merged list on the product.
func (d *Dashboard) ReplaceImagesWithUploads(ctx context.Context, id int64, up *upload.Controller, files []upload.File) error {
	if !d.isAdmin() {
		return ErrAccessDenied
	}
	urls, err := up.Upload(ctx, files)
	if err != nil {
		return err
	}
	return d.ReplaceImages(ctx, id, urls)
}

func (d *Dashboard) isAdmin() bool {
	s := d.Flag.State()
	return s.Data != nil && *s.Data
}
