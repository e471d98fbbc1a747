package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models mapped onto the storefront tables. The schema itself is owned
// by the hosted backend and is never migrated from here.
type ProductModel struct {
	ID            int64 `gorm:"primaryKey"`
	Name          string
	Description   string
	Price         float64
	DiscountPrice *float64
	Slug          *string
	Language      string
	Rating        float64
	Category      string
	Badge         *string
	Pages         string
	CheckoutURL   *string
	AccessURL     *string
	ShareURL      *string
	CreatedAt     time.Time           `gorm:"autoCreateTime:false"`
	Images        []ProductImageModel `gorm:"foreignKey:ProductID"`
}

func (ProductModel) TableName() string { return "products" }

type ProductImageModel struct {
	ID        int64 `gorm:"primaryKey"`
	ProductID int64
	ImageURL  string
}

func (ProductImageModel) TableName() string { return "product_images" }

type ProfileModel struct {
	ID        string `gorm:"primaryKey"`
	Name      *string
	Email     *string
	Slug      *string
	Bio       *string
	ExtraInfo datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime:false"`
}

func (ProfileModel) TableName() string { return "profiles" }

type NewsletterSubscriptionModel struct {
	ID    int64 `gorm:"primaryKey"`
	Email string
}

func (NewsletterSubscriptionModel) TableName() string { return "newsletter_subscriptions" }
