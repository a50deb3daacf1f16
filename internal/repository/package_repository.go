package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PackageRepository reads lesson package balances. The scheduling core never
// decrements them; charging happens in the billing flow.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository creates repository instance.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// HasActiveBalance reports whether the student holds at least one unexpired
// package with units left.
func (r *PackageRepository) HasActiveBalance(ctx context.Context, studentID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM lesson_packages
		WHERE student_id = $1
		  AND remaining_units > 0
		  AND (expires_at IS NULL OR expires_at > NOW())
	)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID); err != nil {
		return false, fmt.Errorf("check package balance: %w", err)
	}
	return exists, nil
}
