package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Izileth/lp-ebook/internal/upload"
	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote/remotetest"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func adminData() *remotetest.Data {
	data := remotetest.NewData()
	data.Admin = true
	data.Stats = domain.AdminStats{InteractionsCount: 12, UsersCount: 5, AdminsCount: 1}
	data.PutProduct(domain.Product{ID: 7, Name: "Seven", Category: "tech"})
	data.PutProduct(domain.Product{ID: 8, Name: "Eight", Category: "tech"})
	return data
}

func TestNonAdminIsDenied(t *testing.T) {
	data := remotetest.NewData()
	d := New(data)
	defer d.Close()

	access, err := d.Load(context.Background())
	if err != nil || access != AccessDenied {
		t.Fatalf("load = %s, %v", access, err)
	}
	if data.Calls("AdminStats") != 0 || data.Calls("ListProducts") != 0 {
		t.Fatalf("denied dashboard must not load admin data")
	}
	if err := d.DeleteProduct(context.Background(), 7); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestAdminLoad(t *testing.T) {
	d := New(adminData())
	defer d.Close()

	access, err := d.Load(context.Background())
	if err != nil || access != AccessGranted {
		t.Fatalf("load = %s, %v", access, err)
	}
	stats := d.Stats.State()
	if stats.Data == nil || stats.Data.ProductsCount != 2 || stats.Data.UsersCount != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if products := d.Products.State(); products.Data == nil || len(*products.Data) != 2 {
		t.Fatalf("unexpected products: %+v", products)
	}
}

func TestStatsFailureDoesNotBlockProducts(t *testing.T) {
	data := adminData()
	data.Fail("AdminStats", errors.New("function get_admin_stats() does not exist"))
	d := New(data)
	defer d.Close()

	access, err := d.Load(context.Background())
	if access != AccessGranted || err == nil {
		t.Fatalf("load = %s, %v", access, err)
	}
	if d.Stats.State().Err == "" {
		t.Fatalf("stats error should be recorded")
	}
	if d.Products.State().Data == nil {
		t.Fatalf("products should still load")
	}
}

func TestFlagFailure(t *testing.T) {
	data := remotetest.NewData()
	data.Fail("IsAdmin", errors.New("network down"))
	d := New(data)
	defer d.Close()
	access, err := d.Load(context.Background())
	if access != AccessUnknown || err == nil {
		t.Fatalf("load = %s, %v", access, err)
	}
}

func TestDeleteRefreshesWatchers(t *testing.T) {
	d := New(adminData())
	defer d.Close()
	if _, err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	d.Watch(context.Background())

	before := d.Key.Value()
	if err := d.DeleteProduct(context.Background(), 7); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if d.Key.Value() != before+1 {
		t.Fatalf("successful write should bump the refresh key")
	}
	eventually(t, func() bool {
		products := d.Products.State()
		stats := d.Stats.State()
		return products.Data != nil && len(*products.Data) == 1 && (*products.Data)[0].ID == 8 &&
			stats.Data != nil && stats.Data.ProductsCount == 1
	})
}

func TestFailedWriteDoesNotBump(t *testing.T) {
	data := adminData()
	d := New(data)
	defer d.Close()
	_, _ = d.Load(context.Background())
	data.Fail("DeleteProduct", errors.New("permission denied"))
	if err := d.DeleteProduct(context.Background(), 7); err == nil {
		t.Fatalf("expected error")
	}
	if d.Key.Value() != 0 {
		t.Fatalf("failed write must not bump the refresh key")
	}
	if d.Delete.Err() != "permission denied" {
		t.Fatalf("err = %q", d.Delete.Err())
	}
}

func TestCreateWithUploads(t *testing.T) {
	data := adminData()
	bucket := remotetest.NewBucket()
	d := New(data)
	defer d.Close()
	_, _ = d.Load(context.Background())

	up := upload.New(bucket, upload.WithResetDelay(0))
	file := upload.File{
		Name:        "cover.png",
		ContentType: "image/png",
		Size:        4,
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte("data"))), nil },
	}
	id, err := d.CreateWithUploads(context.Background(), domain.ProductInput{
		Name:        "New Book",
		Description: "Fresh",
		Category:    "tech",
	}, up, []upload.File{file})
	if err != nil {
		t.Fatalf("create with uploads: %v", err)
	}
	p, err := data.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(p.Images) != 1 || p.Images[0].ImageURL != bucket.PublicURL(bucket.Objects()[0]) {
		t.Fatalf("unexpected images: %+v", p.Images)
	}
}
