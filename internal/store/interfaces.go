package store

import (
	"context"

	"metal-catalog-service/internal/domain"
)

// ListCategoriesParams holds parameters for listing categories.
type ListCategoriesParams struct {
	Limit  int
	Offset int
	// ParentID restricts the list to direct children of a category.
	ParentID *int64
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) // Returns categories and total count for pagination
	ListAllCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// ListProductsParams holds parameters for listing products (for pagination, filtering, sorting).
type ListProductsParams struct {
	Limit       int
	Offset      int
	SearchQuery *string // For searching by name/description/SKU
	CategoryID  *int64
	MinPrice    *float64
	MaxPrice    *float64
	IsActive    *bool
	SortBy      string // "price", "name", "created_at", "updated_at"
	SortOrder   string // "asc" or "desc"
}

// ProductStorer defines the database operations for products.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) // Returns products and total count
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	GetRecentProducts(ctx context.Context, limit int) ([]domain.Product, error)
}

// CategoryCountStorer is the read/write boundary of the category product-count recount.
type CategoryCountStorer interface {
	ListCategoryCounts(ctx context.Context) ([]domain.CategoryCount, error)
	CountProductsByCategory(ctx context.Context, includeInactive bool) (map[int64]int, error)
	UpdateCategoryProductCount(ctx context.Context, categoryID int64, total int) error
}

// ProductImageStorer reads and rewrites product image URLs for image maintenance.
type ProductImageStorer interface {
	ListProductImages(ctx context.Context) ([]domain.ProductImage, error)
	UpdateProductImage(ctx context.Context, productID int64, url string) error
}

// LeadStorer persists form submissions.
type LeadStorer interface {
	CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error)
}
