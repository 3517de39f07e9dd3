package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Supported catalog locales. Russian is the primary language; Kazakh names are optional.
const (
	LocaleRU = "ru"
	LocaleKK = "kk"
)

// Category represents a product category in the catalog taxonomy.
// ProductCount is the stored total: active products in the category and all of its
// descendants, as of the last recount.
type Category struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	NameKK           *string   `json:"name_kk,omitempty"`
	Slug             string    `json:"slug"`
	Description      *string   `json:"description,omitempty"`
	ParentCategoryID *int64    `json:"parent_category_id,omitempty"`
	ProductCount     int       `json:"product_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// LocalizedName returns the Kazakh name for LocaleKK when one is set, the Russian name otherwise.
func (c *Category) LocalizedName(locale string) string {
	if locale == LocaleKK && c.NameKK != nil && *c.NameKK != "" {
		return *c.NameKK
	}
	return c.Name
}

// CategoryCount is the minimal category row the product-count recount works on.
type CategoryCount struct {
	ID               int64
	ParentCategoryID *int64
	ProductCount     int
}

// Product represents a product in the catalog.
// Attributes carries free-form specs such as GOST standard, steel grade and dimensions.
type Product struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Slug        string           `json:"slug"`
	Description *string          `json:"description,omitempty"`
	SKU         string           `json:"sku"`
	Price       decimal.Decimal  `json:"price"`
	Unit        string           `json:"unit"`
	CategoryID  *int64           `json:"category_id,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	IsActive    bool             `json:"is_active"`
	Attributes  *json.RawMessage `json:"attributes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ProductImage pairs a product with its stored image URL.
type ProductImage struct {
	ProductID int64
	URL       string
}

// Lead is a request submitted through one of the site's contact or quote forms.
type Lead struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     *string   `json:"email,omitempty"`
	Message   *string   `json:"message,omitempty"`
	ProductID *int64    `json:"product_id,omitempty"`
	Locale    string    `json:"locale"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
