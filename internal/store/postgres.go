package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"metal-catalog-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrCategoryNotFound       = errors.New("store: category not found")
	ErrCategoryNameExists     = errors.New("store: category name already exists")
	ErrCategorySlugExists     = errors.New("store: category slug already exists")
	ErrParentCategoryNotFound = errors.New("store: parent category not found")
	ErrCategoryHasChildren    = errors.New("store: category has child categories")
	ErrProductNotFound        = errors.New("store: product not found")
	ErrProductSKUExists       = errors.New("store: product SKU already exists")
	ErrProductSlugExists      = errors.New("store: product slug already exists")
)

// Postgres error codes the store translates.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore implements the store interfaces using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// pqError extracts a *pq.Error with the given code, or nil.
func pqError(err error, code string) *pq.Error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == code {
		return pqErr
	}
	return nil
}

// violates reports whether a pq error names the constraint or the column in its detail.
func violates(pqErr *pq.Error, constraint, column string) bool {
	return strings.Contains(pqErr.Constraint, constraint) || strings.Contains(pqErr.Detail, "Key ("+column+")")
}

// --- CategoryStorer Implementation ---

const categoryColumns = `id, name, name_kk, slug, description, parent_category_id, product_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(
		&c.ID, &c.Name, &c.NameKK, &c.Slug, &c.Description,
		&c.ParentCategoryID, &c.ProductCount, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func categoryWriteError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCategoryNotFound
	}
	if pqErr := pqError(err, pqUniqueViolation); pqErr != nil {
		switch {
		case violates(pqErr, "categories_name_key", "name"):
			return ErrCategoryNameExists
		case violates(pqErr, "categories_slug_key", "slug"):
			return ErrCategorySlugExists
		}
	}
	if pqError(err, pqForeignKeyViolation) != nil {
		return ErrParentCategoryNotFound
	}
	return fmt.Errorf("store: %s failed to scan row: %w", op, err)
}

func (s *PostgresStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		INSERT INTO products.categories (name, name_kk, slug, description, parent_category_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + categoryColumns + `;`
	row := s.db.QueryRowContext(ctx, query,
		category.Name, category.NameKK, category.Slug, category.Description, category.ParentCategoryID)

	created, err := scanCategory(row)
	if err != nil {
		return nil, categoryWriteError("CreateCategory", err)
	}
	return created, nil
}

// ListCategories retrieves a paginated list of categories, optionally limited to the
// children of one parent.
func (s *PostgresStore) ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) {
	where := ""
	var args []any
	if params.ParentID != nil {
		where = " WHERE parent_category_id = $1"
		args = append(args, *params.ParentID)
	}

	var totalCount int
	countQuery := "SELECT COUNT(*) FROM products.categories" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to count categories: %w", err)
	}
	if totalCount == 0 {
		return []domain.Category{}, 0, nil
	}

	query := fmt.Sprintf("SELECT %s FROM products.categories%s ORDER BY name ASC LIMIT $%d OFFSET $%d",
		categoryColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, params.Limit)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: ListCategories failed to scan category row: %w", err)
		}
		categories = append(categories, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories iteration error: %w", err)
	}

	return categories, totalCount, nil
}

// ListAllCategories returns every category; the taxonomy is small enough to load whole
// for navigation trees.
func (s *PostgresStore) ListAllCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+categoryColumns+" FROM products.categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: ListAllCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: ListAllCategories failed to scan category row: %w", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListAllCategories iteration error: %w", err)
	}
	return categories, nil
}

func (s *PostgresStore) GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	query := "SELECT " + categoryColumns + " FROM products.categories WHERE id = $1"
	category, err := scanCategory(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByID failed to scan row: %w", err)
	}
	return category, nil
}

// UpdateCategory rewrites the editable fields. product_count is owned by the recount.
func (s *PostgresStore) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		UPDATE products.categories
		SET name = $1, name_kk = $2, slug = $3, description = $4, parent_category_id = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6
		RETURNING ` + categoryColumns + `;`
	row := s.db.QueryRowContext(ctx, query,
		category.Name, category.NameKK, category.Slug, category.Description, category.ParentCategoryID, category.ID)

	updated, err := scanCategory(row)
	if err != nil {
		return nil, categoryWriteError("UpdateCategory", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products.categories WHERE id = $1`, id)
	if err != nil {
		if pqError(err, pqForeignKeyViolation) != nil {
			return ErrCategoryHasChildren
		}
		return fmt.Errorf("store: DeleteCategory failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteCategory failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// --- ProductStorer Implementation ---

const productColumns = `id, name, slug, description, sku, price, unit, category_id, image_url, is_active, attributes, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var attributes sql.NullString
	if err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.SKU, &p.Price, &p.Unit,
		&p.CategoryID, &p.ImageURL, &p.IsActive, &attributes,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if attributes.Valid && attributes.String != "" && attributes.String != "null" {
		raw := json.RawMessage(attributes.String)
		p.Attributes = &raw
	}
	return &p, nil
}

// attributesArg converts optional JSON attributes into a JSONB argument.
func attributesArg(attrs *json.RawMessage) any {
	if attrs == nil || len(*attrs) == 0 {
		return nil
	}
	return []byte(*attrs)
}

func productWriteError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProductNotFound
	}
	if pqErr := pqError(err, pqUniqueViolation); pqErr != nil {
		switch {
		case violates(pqErr, "products_sku_key", "sku"):
			return ErrProductSKUExists
		case violates(pqErr, "products_slug_key", "slug"):
			return ErrProductSlugExists
		}
	}
	if pqError(err, pqForeignKeyViolation) != nil {
		return ErrCategoryNotFound
	}
	return fmt.Errorf("store: %s failed to scan row: %w", op, err)
}

func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		INSERT INTO products.products
			(name, slug, description, sku, price, unit, category_id, image_url, is_active, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + productColumns + `;`
	row := s.db.QueryRowContext(ctx, query,
		product.Name, product.Slug, product.Description, product.SKU, product.Price, product.Unit,
		product.CategoryID, product.ImageURL, product.IsActive, attributesArg(product.Attributes),
	)

	created, err := scanProduct(row)
	if err != nil {
		return nil, productWriteError("CreateProduct", err)
	}
	return created, nil
}

var productSortColumns = map[string]string{
	"name":       "name",
	"price":      "price",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	var queryArgs []any
	var whereClauses []string
	argID := 1

	if params.SearchQuery != nil && *params.SearchQuery != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR sku ILIKE $%d)", argID, argID, argID))
		queryArgs = append(queryArgs, "%"+*params.SearchQuery+"%")
		argID++
	}
	if params.CategoryID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("category_id = $%d", argID))
		queryArgs = append(queryArgs, *params.CategoryID)
		argID++
	}
	if params.MinPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("price >= $%d", argID))
		queryArgs = append(queryArgs, *params.MinPrice)
		argID++
	}
	if params.MaxPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("price <= $%d", argID))
		queryArgs = append(queryArgs, *params.MaxPrice)
		argID++
	}
	if params.IsActive != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("is_active = $%d", argID))
		queryArgs = append(queryArgs, *params.IsActive)
		argID++
	}

	whereCondition := ""
	if len(whereClauses) > 0 {
		whereCondition = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var totalCount int
	countQuery := "SELECT COUNT(*) FROM products.products" + whereCondition
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}
	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	sortColumn := "created_at"
	if col, ok := productSortColumns[strings.ToLower(params.SortBy)]; ok {
		sortColumn = col
	}
	sortOrder := "ASC"
	if strings.ToUpper(params.SortOrder) == "DESC" {
		sortOrder = "DESC"
	}

	dataQuery := fmt.Sprintf("SELECT %s FROM products.products%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		productColumns, whereCondition, sortColumn, sortOrder, argID, argID+1)
	rows, err := s.db.QueryContext(ctx, dataQuery, append(queryArgs, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, params.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: ListProducts failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts iteration error: %w", err)
	}

	return products, totalCount, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := "SELECT " + productColumns + " FROM products.products WHERE id = $1"
	product, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	return product, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		UPDATE products.products
		SET name = $1, slug = $2, description = $3, sku = $4, price = $5, unit = $6,
			category_id = $7, image_url = $8, is_active = $9, attributes = $10, updated_at = CURRENT_TIMESTAMP
		WHERE id = $11
		RETURNING ` + productColumns + `;`
	row := s.db.QueryRowContext(ctx, query,
		product.Name, product.Slug, product.Description, product.SKU, product.Price, product.Unit,
		product.CategoryID, product.ImageURL, product.IsActive, attributesArg(product.Attributes), product.ID,
	)

	updated, err := scanProduct(row)
	if err != nil {
		return nil, productWriteError("UpdateProduct", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products.products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetRecentProducts returns the newest active products, used for the catalog front page.
func (s *PostgresStore) GetRecentProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		return []domain.Product{}, nil
	}
	query := "SELECT " + productColumns + " FROM products.products WHERE is_active = TRUE ORDER BY created_at DESC LIMIT $1"
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: GetRecentProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: GetRecentProducts failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: GetRecentProducts iteration error: %w", err)
	}
	return products, nil
}
