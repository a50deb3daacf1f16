package service

import (
	"context"

	"github.com/mirelo-edu/tutor-api/internal/models"
)

// ClassProvisioner resolves or creates the concrete 1-on-1 class a booking
// approval materializes into. Implementations must be idempotent and fail
// with repository.ErrEnrollmentConflict when the student already takes the
// course through another class.
type ClassProvisioner interface {
	GetOrCreateOneOnOneClass(ctx context.Context, params models.ProvisionClassParams) (*models.Class, error)
}

// PackageLedger is the financial collaborator. The scheduling core only asks
// whether a student may book; it never mutates balances.
type PackageLedger interface {
	HasActiveBalance(ctx context.Context, studentID string) (bool, error)
}
