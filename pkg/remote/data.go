package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Izileth/lp-ebook/pkg/domain"
)

// DataAPI is the row-level surface of the hosted database: table reads and
// writes plus the server-side procedures the storefront relies on.
type DataAPI interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	CreateProductWithImages(ctx context.Context, in domain.ProductInput) (int64, error)
	UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) error
	ReplaceProductImages(ctx context.Context, id int64, imageURLs []string) error
	DeleteProduct(ctx context.Context, id int64) error

	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.Profile, error)

	IsAdmin(ctx context.Context) (bool, error)
	AdminStats(ctx context.Context) (domain.AdminStats, error)

	SubscribeNewsletter(ctx context.Context, email string) error
}

const productSelect = "*,product_images(*)"

// DataClient implements DataAPI over the REST endpoint. Requests carry the
// signed-in user's token so row-level policies apply.
type DataClient struct {
	t     *transport
	token func() string
}

func newDataClient(t *transport, token func() string) *DataClient {
	if token == nil {
		token = func() string { return "" }
	}
	return &DataClient{t: t, token: token}
}

func (d *DataClient) ListProducts(ctx context.Context) ([]domain.Product, error) {
	q := url.Values{}
	q.Set("select", productSelect)
	q.Set("order", "id.asc")
	q.Set("product_images.order", "id.asc")
	var out []domain.Product
	if err := d.do(ctx, http.MethodGet, "/rest/v1/products?"+q.Encode(), nil, &out, nil); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Product{}
	}
	return out, nil
}

func (d *DataClient) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	q := url.Values{}
	q.Set("select", productSelect)
	q.Set("id", eq(id))
	q.Set("product_images.order", "id.asc")
	var out domain.Product
	if err := d.do(ctx, http.MethodGet, "/rest/v1/products?"+q.Encode(), nil, &out, singleObject()); err != nil {
		if IsNotFound(err) {
			return domain.Product{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return domain.Product{}, err
	}
	return out, nil
}

func (d *DataClient) CreateProductWithImages(ctx context.Context, in domain.ProductInput) (int64, error) {
	if in.ImageURLs == nil {
		in.ImageURLs = []string{}
	}
	var raw json.RawMessage
	if err := d.do(ctx, http.MethodPost, "/rest/v1/rpc/create_product_with_images", in, &raw, nil); err != nil {
		return 0, err
	}
	return parseID(raw), nil
}

func (d *DataClient) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) error {
	path := "/rest/v1/products?id=" + url.QueryEscape(eq(id))
	return d.do(ctx, http.MethodPatch, path, patch, nil, preferMinimal())
}

// ReplaceProductImages swaps the product's image rows for imageURLs, keeping order.
func (d *DataClient) ReplaceProductImages(ctx context.Context, id int64, imageURLs []string) error {
	path := "/rest/v1/product_images?product_id=" + url.QueryEscape(eq(id))
	if err := d.do(ctx, http.MethodDelete, path, nil, nil, preferMinimal()); err != nil {
		return fmt.Errorf("remove images: %w", err)
	}
	if len(imageURLs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(imageURLs))
	for _, u := range imageURLs {
		rows = append(rows, map[string]any{"product_id": id, "image_url": u})
	}
	if err := d.do(ctx, http.MethodPost, "/rest/v1/product_images", rows, nil, preferMinimal()); err != nil {
		return fmt.Errorf("insert images: %w", err)
	}
	return nil
}

func (d *DataClient) DeleteProduct(ctx context.Context, id int64) error {
	path := "/rest/v1/products?id=" + url.QueryEscape(eq(id))
	return d.do(ctx, http.MethodDelete, path, nil, nil, preferMinimal())
}

func (d *DataClient) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	path := "/rest/v1/profiles?select=*&id=" + url.QueryEscape("eq."+userID)
	var out domain.Profile
	if err := d.do(ctx, http.MethodGet, path, nil, &out, singleObject()); err != nil {
		if IsNotFound(err) {
			return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return domain.Profile{}, err
	}
	return out, nil
}

func (d *DataClient) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.Profile, error) {
	path := "/rest/v1/profiles?select=*&id=" + url.QueryEscape("eq."+userID)
	h := singleObject()
	h.Set("Prefer", "return=representation")
	var out domain.Profile
	if err := d.do(ctx, http.MethodPatch, path, patch, &out, h); err != nil {
		if IsNotFound(err) {
			return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return domain.Profile{}, err
	}
	return out, nil
}

func (d *DataClient) IsAdmin(ctx context.Context) (bool, error) {
	var out bool
	if err := d.do(ctx, http.MethodPost, "/rest/v1/rpc/is_admin", map[string]any{}, &out, nil); err != nil {
		return false, err
	}
	return out, nil
}

func (d *DataClient) AdminStats(ctx context.Context) (domain.AdminStats, error) {
	var raw json.RawMessage
	if err := d.do(ctx, http.MethodPost, "/rest/v1/rpc/get_admin_stats", map[string]any{}, &raw, nil); err != nil {
		return domain.AdminStats{}, err
	}
	return parseStats(raw)
}

func (d *DataClient) SubscribeNewsletter(ctx context.Context, email string) error {
	row := domain.NewsletterSubscription{Email: strings.ToLower(strings.TrimSpace(email))}
	return d.do(ctx, http.MethodPost, "/rest/v1/newsletter_subscriptions", row, nil, preferMinimal())
}

func (d *DataClient) do(ctx context.Context, method, path string, payload, out any, header http.Header) error {
	return d.t.doJSON(ctx, call{
		api:    "rest",
		method: method,
		path:   path,
		token:  d.token(),
		header: header,
	}, payload, out)
}

func eq(id int64) string {
	return "eq." + strconv.FormatInt(id, 10)
}

func singleObject() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/vnd.pgrst.object+json")
	return h
}

func preferMinimal() http.Header {
	h := http.Header{}
	h.Set("Prefer", "return=minimal")
	return h
}

// parseID accepts the procedure result as a bare id, an object with an id
// field, or a one-element array of either.
func parseID(raw json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var obj struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.ID != 0 {
		return obj.ID
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return parseID(arr[0])
	}
	return 0
}

// parseStats accepts a single stats object or a one-row result set.
func parseStats(raw json.RawMessage) (domain.AdminStats, error) {
	var stats domain.AdminStats
	if err := json.Unmarshal(raw, &stats); err == nil {
		return stats, nil
	}
	var rows []domain.AdminStats
	if err := json.Unmarshal(raw, &rows); err != nil {
		return domain.AdminStats{}, fmt.Errorf("decode admin stats: %w", err)
	}
	if len(rows) == 0 {
		return domain.AdminStats{}, nil
	}
	return rows[0], nil
}
