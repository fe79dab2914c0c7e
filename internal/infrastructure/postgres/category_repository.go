package postgres

import (
	"context"
	"fmt"

	"ledgerline/internal/domain/categorization"
)

type CategoryRepository struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) ListCategories(ctx context.Context) ([]categorization.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, is_system FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []categorization.Category
	for rows.Next() {
		var c categorization.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.IsSystem); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}
