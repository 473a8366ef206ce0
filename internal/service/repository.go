package service

import (
	"context"

	"datasethub/internal/domain"
)

// UserRepository - хранилище пользователей
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, patch domain.ProfilePatch) (*domain.User, error)
}

// DatasetRepository - хранилище датасетов и их версий.
// Update, Delete и AppendVersion сериализуются для одного датасета.
type DatasetRepository interface {
	Create(ctx context.Context, dataset *domain.Dataset) error
	GetByID(ctx context.Context, id int64) (*domain.Dataset, error)
	ListPublic(ctx context.Context, offset, limit int) ([]domain.Dataset, error)
	Update(ctx context.Context, id int64, mutate domain.DatasetMutation) (*domain.Dataset, error)
	Delete(ctx context.Context, id int64, check domain.DatasetMutation) ([]domain.DatasetVersion, error)

	AppendVersion(ctx context.Context, datasetID int64, stage domain.VersionStage) (*domain.DatasetVersion, error)
	GetVersions(ctx context.Context, datasetID int64) ([]domain.DatasetVersion, error)
	// GetVersion возвращает версию по номеру, 0 означает последнюю
	GetVersion(ctx context.Context, datasetID int64, versionNumber int) (*domain.DatasetVersion, error)
	GetVersionByID(ctx context.Context, id int64) (*domain.DatasetVersion, error)
	RecordDownload(ctx context.Context, datasetID, versionID int64) error
	StorageKeyExists(ctx context.Context, key string) (bool, error)
}
