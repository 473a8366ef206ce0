package domain

import "time"

type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"credential_hash"`
	FullName     *string   `json:"full_name,omitempty" db:"full_name"`
	Bio          *string   `json:"bio,omitempty" db:"bio"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Owner представляет публичную информацию о владельце датасета
type Owner struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	FullName *string `json:"full_name,omitempty"`
}

func (u *User) Owner() *Owner {
	return &Owner{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
	}
}

// UserRegistration содержит данные для регистрации нового пользователя
type UserRegistration struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty"`
}

// ProfilePatch - частичное обновление профиля. null очищает поле.
type ProfilePatch struct {
	FullName Optional[string] `json:"full_name"`
	Bio      Optional[string] `json:"bio"`
}

// Apply применяет переданные поля к пользователю
func (p ProfilePatch) Apply(u *User) {
	if p.FullName.Set {
		u.FullName = optionalPtr(p.FullName)
	}
	if p.Bio.Set {
		u.Bio = optionalPtr(p.Bio)
	}
}

func optionalPtr(o Optional[string]) *string {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// AccessToken выдается при успешном входе
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
