package store

import (
	"context"
	"database/sql"
	"fmt"

	"metal-catalog-service/internal/domain"
)

// --- CategoryCountStorer Implementation ---

// ListCategoryCounts loads the whole category forest with the stored totals.
// A NULL or negative stored total is read as 0 so the recount rewrites it.
func (s *PostgresStore) ListCategoryCounts(ctx context.Context) ([]domain.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, parent_category_id, product_count FROM products.categories`)
	if err != nil {
		return nil, fmt.Errorf("store: ListCategoryCounts failed to query categories: %w", err)
	}
	defer rows.Close()

	var counts []domain.CategoryCount
	for rows.Next() {
		var (
			c      domain.CategoryCount
			parent sql.NullInt64
			stored sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &parent, &stored); err != nil {
			return nil, fmt.Errorf("store: ListCategoryCounts failed to scan row: %w", err)
		}
		if parent.Valid {
			p := parent.Int64
			c.ParentCategoryID = &p
		}
		if stored.Valid && stored.Int64 > 0 {
			c.ProductCount = int(stored.Int64)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListCategoryCounts iteration error: %w", err)
	}
	return counts, nil
}

// CountProductsByCategory returns the number of products assigned directly to each
// category. Unless includeInactive is set only active products are counted.
func (s *PostgresStore) CountProductsByCategory(ctx context.Context, includeInactive bool) (map[int64]int, error) {
	query := `
		SELECT category_id, COUNT(*)
		FROM products.products
		WHERE category_id IS NOT NULL AND (is_active = TRUE OR $1)
		GROUP BY category_id`
	rows, err := s.db.QueryContext(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("store: CountProductsByCategory failed to query products: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var (
			categoryID int64
			count      int
		)
		if err := rows.Scan(&categoryID, &count); err != nil {
			return nil, fmt.Errorf("store: CountProductsByCategory failed to scan row: %w", err)
		}
		counts[categoryID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: CountProductsByCategory iteration error: %w", err)
	}
	return counts, nil
}

// UpdateCategoryProductCount stores a recomputed total. updated_at is left alone: the
// total is derived data, not an editorial change.
func (s *PostgresStore) UpdateCategoryProductCount(ctx context.Context, categoryID int64, total int) error {
	result, err := s.db.ExecContext(ctx, `UPDATE products.categories SET product_count = $1 WHERE id = $2`, total, categoryID)
	if err != nil {
		return fmt.Errorf("store: UpdateCategoryProductCount failed for category %d: %w", categoryID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: UpdateCategoryProductCount failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// --- ProductImageStorer Implementation ---

// ListProductImages returns every product that has an image URL.
func (s *PostgresStore) ListProductImages(ctx context.Context) ([]domain.ProductImage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, image_url FROM products.products WHERE image_url IS NOT NULL AND image_url <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: ListProductImages failed to query products: %w", err)
	}
	defer rows.Close()

	var images []domain.ProductImage
	for rows.Next() {
		var img domain.ProductImage
		if err := rows.Scan(&img.ProductID, &img.URL); err != nil {
			return nil, fmt.Errorf("store: ListProductImages failed to scan row: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListProductImages iteration error: %w", err)
	}
	return images, nil
}

func (s *PostgresStore) UpdateProductImage(ctx context.Context, productID int64, url string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE products.products SET image_url = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, url, productID)
	if err != nil {
		return fmt.Errorf("store: UpdateProductImage failed for product %d: %w", productID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: UpdateProductImage failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
