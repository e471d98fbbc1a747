package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

func newMockData(t *testing.T, userID string) (*GormData, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return NewGormDataWithDB(db, func() string { return userID }), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListProductsPreloadsImages(t *testing.T) {
	data, mock := newMockData(t, "")
	mock.ExpectQuery(`SELECT \* FROM "products" ORDER BY id asc`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "category"}).
			AddRow(7, "Go Book", 49.9, "tech"))
	mock.ExpectQuery(`SELECT \* FROM "product_images" WHERE "product_images"."product_id" = \$1 ORDER BY id asc`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "image_url"}).
			AddRow(1, 7, "https://cdn/a.jpg").
			AddRow(2, 7, "https://cdn/b.jpg"))

	products, err := data.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Go Book" {
		t.Fatalf("unexpected products: %+v", products)
	}
	if urls := products[0].ImageURLs(); len(urls) != 2 || urls[1] != "https://cdn/b.jpg" {
		t.Fatalf("unexpected images: %v", urls)
	}
	expectationsMet(t, mock)
}

func TestGetProductNotFound(t *testing.T) {
	data, mock := newMockData(t, "")
	mock.ExpectQuery(`SELECT \* FROM "products" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := data.GetProduct(context.Background(), 999)
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestIsAdminSetsClaims(t *testing.T) {
	data, mock := newMockData(t, "user-1")
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\('request.jwt.claims', \$1, true\)`).
		WithArgs(`{"role":"authenticated","sub":"user-1"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT is_admin\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"is_admin"}).AddRow(true))
	mock.ExpectCommit()

	ok, err := data.IsAdmin(context.Background())
	if err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if !ok {
		t.Fatalf("expected admin")
	}
	expectationsMet(t, mock)
}

func TestAdminStatsAnonymousClaims(t *testing.T) {
	data, mock := newMockData(t, "")
	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).
		WithArgs(`{"role":"anon"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT get_admin_stats\(\)::text`).
		WillReturnRows(sqlmock.NewRows([]string{"get_admin_stats"}).
			AddRow(`{"products_count":3,"interactions_count":9,"users_count":4,"admins_count":1}`))
	mock.ExpectCommit()

	stats, err := data.AdminStats(context.Background())
	if err != nil {
		t.Fatalf("admin stats: %v", err)
	}
	want := domain.AdminStats{ProductsCount: 3, InteractionsCount: 9, UsersCount: 4, AdminsCount: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	expectationsMet(t, mock)
}

func TestCreateProductWithImagesCallsProcedure(t *testing.T) {
	data, mock := newMockData(t, "admin-1")
	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT create_product_with_images\(`).
		WillReturnRows(sqlmock.NewRows([]string{"create_product_with_images"}).AddRow(42))
	mock.ExpectCommit()

	id, err := data.CreateProductWithImages(context.Background(), domain.ProductInput{
		Name:      "Go Book",
		Category:  "tech",
		ImageURLs: []string{"https://cdn/a.jpg"},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	expectationsMet(t, mock)
}

func TestReplaceProductImages(t *testing.T) {
	data, mock := newMockData(t, "")
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "product_images" WHERE product_id = \$1`).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`INSERT INTO "product_images"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10).AddRow(11))
	mock.ExpectCommit()

	if err := data.ReplaceProductImages(context.Background(), 7, []string{"https://cdn/c.jpg", "https://cdn/d.jpg"}); err != nil {
		t.Fatalf("replace images: %v", err)
	}
	expectationsMet(t, mock)
}

func TestUpdateProfileMissingRow(t *testing.T) {
	data, mock := newMockData(t, "user-1")
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "profiles" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	name := "Ana"
	_, err := data.UpdateProfile(context.Background(), "user-1", domain.ProfilePatch{Name: &name, UpdatedAt: time.Now()})
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestSubscribeNewsletterDuplicate(t *testing.T) {
	data, mock := newMockData(t, "")
	mock.ExpectQuery(`INSERT INTO "newsletter_subscriptions"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := data.SubscribeNewsletter(context.Background(), "ana@example.com")
	if !remote.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestTextArrayValue(t *testing.T) {
	v, err := textArray{"https://cdn/a.jpg", `we"ird\path`}.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	want := `{"https://cdn/a.jpg","we\"ird\\path"}`
	if v != want {
		t.Fatalf("value = %v, want %s", v, want)
	}
}
