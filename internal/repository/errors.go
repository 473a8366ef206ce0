package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"datasethub/internal/domain"
)

// Коды ошибок postgres
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapError переводит ошибки драйвера в ошибки предметной области
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s (%s)", domain.ErrConflict, what, pqErr.Constraint)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s references missing row", domain.ErrNotFound, what)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
