// Package store reads and writes storefront rows over a direct Postgres
// connection. It is an alternative data plane to the REST API for operators
// with database access.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

// GormData implements remote.DataAPI using GORM + Postgres. Stored procedures
// run inside a transaction that carries the caller's claims, so procedures
// that check auth.uid() see the signed-in user.
type GormData struct {
	db     *gorm.DB
	userID func() string
}

var _ remote.DataAPI = (*GormData)(nil)

// NewGormData opens the database. userID reports the signed-in user and may
// return "" for anonymous access.
func NewGormData(dsn string, userID func() string) (*GormData, error) {
	gormLog := gormlogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return NewGormDataWithDB(db, userID), nil
}

// NewGormDataWithDB wraps an existing connection.
func NewGormDataWithDB(db *gorm.DB, userID func() string) *GormData {
	if userID == nil {
		userID = func() string { return "" }
	}
	return &GormData{db: db, userID: userID}
}

func (s *GormData) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var models []ProductModel
	err := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Order("id asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(models))
	for _, m := range models {
		out = append(out, productFromModel(m))
	}
	return out, nil
}

func (s *GormData) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	var m ProductModel
	err := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, remote.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, err
	}
	return productFromModel(m), nil
}

func (s *GormData) CreateProductWithImages(ctx context.Context, in domain.ProductInput) (int64, error) {
	urls := in.ImageURLs
	if urls == nil {
		urls = []string{}
	}
	var id sql.NullInt64
	err := s.withClaims(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`SELECT create_product_with_images(
			name => @name, description => @description, price => @price,
			discount_price => @discount_price, slug => @slug, language => @language,
			rating => @rating, category => @category, badge => @badge, pages => @pages,
			image_urls => @image_urls::text[], checkout_url => @checkout_url,
			access_url => @access_url, share_url => @share_url)`,
			map[string]any{
				"name":           in.Name,
				"description":    in.Description,
				"price":          in.Price,
				"discount_price": in.DiscountPrice,
				"slug":           in.Slug,
				"language":       in.Language,
				"rating":         in.Rating,
				"category":       in.Category,
				"badge":          in.Badge,
				"pages":          in.Pages,
				"image_urls":     textArray(urls),
				"checkout_url":   in.CheckoutURL,
				"access_url":     in.AccessURL,
				"share_url":      in.ShareURL,
			}).Scan(&id).Error
	})
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (s *GormData) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) error {
	return s.db.WithContext(ctx).Model(&ProductModel{}).Where("id = ?", id).Updates(map[string]any{
		"name":           patch.Name,
		"description":    patch.Description,
		"price":          patch.Price,
		"discount_price": patch.DiscountPrice,
		"slug":           patch.Slug,
		"language":       patch.Language,
		"rating":         patch.Rating,
		"category":       patch.Category,
		"badge":          patch.Badge,
		"pages":          patch.Pages,
		"checkout_url":   patch.CheckoutURL,
		"access_url":     patch.AccessURL,
		"share_url":      patch.ShareURL,
	}).Error
}

func (s *GormData) ReplaceProductImages(ctx context.Context, id int64, imageURLs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&ProductImageModel{}).Error; err != nil {
			return fmt.Errorf("remove images: %w", err)
		}
		if len(imageURLs) == 0 {
			return nil
		}
		rows := make([]ProductImageModel, 0, len(imageURLs))
		for _, u := range imageURLs {
			rows = append(rows, ProductImageModel{ProductID: id, ImageURL: u})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert images: %w", err)
		}
		return nil
	})
}

func (s *GormData) DeleteProduct(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&ProductModel{}, id).Error
}

func (s *GormData) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var m ProfileModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, remote.ErrNotFound)
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return profileFromModel(m), nil
}

func (s *GormData) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.Profile, error) {
	updates := map[string]any{"updated_at": patch.UpdatedAt}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Slug != nil {
		updates["slug"] = *patch.Slug
	}
	if patch.Bio != nil {
		updates["bio"] = *patch.Bio
	}
	if patch.ExtraInfo != nil {
		updates["extra_info"] = datatypes.JSONMap(patch.ExtraInfo)
	}
	var out domain.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ProfileModel{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("profile %s: %w", userID, remote.ErrNotFound)
		}
		var m ProfileModel
		if err := tx.First(&m, "id = ?", userID).Error; err != nil {
			return err
		}
		out = profileFromModel(m)
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return out, nil
}

func (s *GormData) IsAdmin(ctx context.Context) (bool, error) {
	var ok sql.NullBool
	err := s.withClaims(ctx, func(tx *gorm.DB) error {
		return tx.Raw("SELECT is_admin()").Scan(&ok).Error
	})
	if err != nil {
		return false, err
	}
	return ok.Valid && ok.Bool, nil
}

func (s *GormData) AdminStats(ctx context.Context) (domain.AdminStats, error) {
	var stats domain.AdminStats
	err := s.withClaims(ctx, func(tx *gorm.DB) error {
		var raw sql.NullString
		if err := tx.Raw("SELECT get_admin_stats()::text").Scan(&raw).Error; err != nil {
			return err
		}
		if !raw.Valid || raw.String == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(raw.String), &stats); err != nil {
			return fmt.Errorf("decode admin stats: %w", err)
		}
		return nil
	})
	return stats, err
}

func (s *GormData) SubscribeNewsletter(ctx context.Context, email string) error {
	err := s.db.WithContext(ctx).Create(&NewsletterSubscriptionModel{Email: email}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &remote.APIError{Status: 409, Code: "23505", Message: "email already subscribed"}
	}
	return err
}

// withClaims runs fn in a transaction whose request.jwt.claims setting
// identifies the current user.
func (s *GormData) withClaims(ctx context.Context, fn func(tx *gorm.DB) error) error {
	claims := map[string]string{"role": "anon"}
	if id := s.userID(); id != "" {
		claims = map[string]string{"sub": id, "role": "authenticated"}
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT set_config('request.jwt.claims', ?, true)", string(raw)).Error; err != nil {
			return fmt.Errorf("set claims: %w", err)
		}
		return fn(tx)
	})
}

func productFromModel(m ProductModel) domain.Product {
	images := make([]domain.ProductImage, 0, len(m.Images))
	for _, img := range m.Images {
		images = append(images, domain.ProductImage{ID: img.ID, ProductID: img.ProductID, ImageURL: img.ImageURL})
	}
	return domain.Product{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Price:         m.Price,
		DiscountPrice: m.DiscountPrice,
		Slug:          m.Slug,
		Language:      m.Language,
		Rating:        m.Rating,
		Category:      m.Category,
		Badge:         m.Badge,
		Pages:         m.Pages,
		Images:        images,
		CheckoutURL:   m.CheckoutURL,
		AccessURL:     m.AccessURL,
		ShareURL:      m.ShareURL,
		CreatedAt:     m.CreatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.Profile {
	var extra map[string]any
	if m.ExtraInfo != nil {
		extra = map[string]any(m.ExtraInfo)
	}
	return domain.Profile{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Slug:      m.Slug,
		Bio:       m.Bio,
		ExtraInfo: extra,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// textArray binds a string slice as a single Postgres text[] literal.
type textArray []string

func (a textArray) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		b.WriteString(v)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String(), nil
}
