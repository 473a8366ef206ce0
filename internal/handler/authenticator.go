package handler

import (
	"net/http"

	"datasethub/internal/auth"
	"datasethub/internal/domain"
	"datasethub/internal/service"
)

// authenticator определяет пользователя по bearer токену
type authenticator struct {
	userService *service.UserService
}

// requireUser возвращает пользователя или ошибку, если токена нет
func (a authenticator) requireUser(r *http.Request) (*domain.User, error) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	return a.userService.Authenticate(r.Context(), token)
}

// optionalCaller возвращает ID пользователя или 0 для анонимного запроса.
// Переданный, но неверный токен - ошибка.
func (a authenticator) optionalCaller(r *http.Request) (int64, error) {
	if r.Header.Get("Authorization") == "" {
		return 0, nil
	}
	user, err := a.requireUser(r)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
