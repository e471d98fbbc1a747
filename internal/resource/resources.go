package resource

import (
	"context"
	"sync"

	"github.com/Izileth/lp-ebook/internal/session"
	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

// Products lists every product with its images.
func Products(data remote.DataAPI) *Resource[NoKey, []domain.Product] {
	return New("products", func(ctx context.Context, _ NoKey) ([]domain.Product, error) {
		if data == nil {
			return nil, remote.ErrUnavailable
		}
		return data.ListProducts(ctx)
	}, nil)
}

// Product reads one product. Id 0 means no product is selected.
func Product(data remote.DataAPI) *Resource[int64, domain.Product] {
	return New("product", func(ctx context.Context, id int64) (domain.Product, error) {
		if data == nil {
			return domain.Product{}, remote.ErrUnavailable
		}
		return data.GetProduct(ctx, id)
	}, func(id int64) bool { return id > 0 })
}

// Profile reads the profile of an identity. An empty id means signed out.
func Profile(data remote.DataAPI) *Resource[string, domain.Profile] {
	return New("profile", func(ctx context.Context, userID string) (domain.Profile, error) {
		if data == nil {
			return domain.Profile{}, remote.ErrUnavailable
		}
		return data.GetProfile(ctx, userID)
	}, func(userID string) bool { return userID != "" })
}

func AdminStats(data remote.DataAPI) *Resource[NoKey, domain.AdminStats] {
	return New("admin_stats", func(ctx context.Context, _ NoKey) (domain.AdminStats, error) {
		if data == nil {
			return domain.AdminStats{}, remote.ErrUnavailable
		}
		return data.AdminStats(ctx)
	}, nil)
}

// AdminFlag asks the backend whether the caller is an administrator.
func AdminFlag(data remote.DataAPI) *Resource[NoKey, bool] {
	return New("admin_flag", func(ctx context.Context, _ NoKey) (bool, error) {
		if data == nil {
			return false, remote.ErrUnavailable
		}
		return data.IsAdmin(ctx)
	}, nil)
}

// BindProfile keeps res loaded with the profile of the signed-in identity.
// Nothing is loaded until the session store finished its initial check.
// Loads run in the background; the returned function stops the binding.
func BindProfile(ctx context.Context, sessions *session.Store, res *Resource[string, domain.Profile]) func() {
	var (
		mu     sync.Mutex
		bound  bool
		lastID string
	)
	apply := func(state session.State) {
		if !sessions.Initialized() {
			return
		}
		id := ""
		if state.Identity != nil {
			id = state.Identity.ID
		}
		mu.Lock()
		if bound && id == lastID {
			mu.Unlock()
			return
		}
		bound = true
		lastID = id
		run := res.start(ctx, id)
		mu.Unlock()
		go func() { _ = run() }()
	}
	unsubscribe := sessions.Subscribe(apply)
	apply(sessions.State())
	return unsubscribe
}
