package domain

import "errors"

// Ошибки предметной области. Сервисы оборачивают их через %w,
// хендлеры сопоставляют с HTTP статусами через errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrForbidden    = errors.New("access denied")
	ErrInvalidToken = errors.New("invalid token")
	ErrIOFailure    = errors.New("storage operation failed")
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidCredentials = errors.New("invalid credentials")
)
