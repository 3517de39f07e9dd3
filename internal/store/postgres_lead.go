package store

import (
	"context"
	"fmt"

	"metal-catalog-service/internal/domain"
)

// --- LeadStorer Implementation ---

func (s *PostgresStore) CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	query := `
		INSERT INTO products.leads (name, phone, email, message, product_id, locale, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, name, phone, email, message, product_id, locale, source, created_at;`

	var created domain.Lead
	err := s.db.QueryRowContext(ctx, query,
		lead.Name, lead.Phone, lead.Email, lead.Message, lead.ProductID, lead.Locale, lead.Source,
	).Scan(
		&created.ID, &created.Name, &created.Phone, &created.Email, &created.Message,
		&created.ProductID, &created.Locale, &created.Source, &created.CreatedAt,
	)
	if err != nil {
		if pqError(err, pqForeignKeyViolation) != nil {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: CreateLead failed to scan row: %w", err)
	}
	return &created, nil
}
