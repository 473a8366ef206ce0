package domain

import (
	"fmt"
	"strings"
	"time"
)

type Dataset struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	IsPublic    bool      `json:"is_public" db:"is_public"`
	Downloads   int64     `json:"downloads" db:"downloads"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// VisibleTo сообщает, может ли пользователь читать датасет.
// callerID == 0 означает анонимный запрос.
func (d *Dataset) VisibleTo(callerID int64) bool {
	return d.IsPublic || (callerID != 0 && d.OwnerID == callerID)
}

// DatasetCreate содержит данные для создания датасета
type DatasetCreate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

func (c DatasetCreate) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return nil
}

// DatasetPatch - частичное обновление датасета.
// IsPublic=false в запросе отличается от отсутствующего поля.
type DatasetPatch struct {
	Name        Optional[string] `json:"name"`
	Description Optional[string] `json:"description"`
	IsPublic    Optional[bool]   `json:"is_public"`
}

// Apply применяет переданные поля к датасету
func (p DatasetPatch) Apply(d *Dataset) error {
	if p.Name.Set {
		if p.Name.Null || strings.TrimSpace(p.Name.Value) == "" {
			return fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		d.Name = p.Name.Value
	}
	if p.Description.Set {
		// null очищает описание
		d.Description = p.Description.Value
	}
	if p.IsPublic.Set {
		if p.IsPublic.Null {
			return fmt.Errorf("%w: is_public cannot be null", ErrInvalidInput)
		}
		d.IsPublic = p.IsPublic.Value
	}
	return nil
}

// DatasetDetail - датасет вместе с владельцем и списком версий
type DatasetDetail struct {
	Dataset
	Owner    *Owner           `json:"owner"`
	Versions []DatasetVersion `json:"versions"`
}

// DatasetMutation вызывается репозиторием для заблокированного датасета.
// Ошибка отменяет изменение.
type DatasetMutation func(d *Dataset) error

// VersionStage вызывается под блокировкой датасета с номером новой версии.
// Возвращенная версия сохраняется только если stage завершился без ошибки.
type VersionStage func(d *Dataset, versionNumber int) (*DatasetVersion, error)
