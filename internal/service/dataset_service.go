package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"datasethub/internal/domain"
	"datasethub/internal/service/blob"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// DatasetService - реестр датасетов и их версий
type DatasetService struct {
	datasetRepo DatasetRepository
	userRepo    UserRepository
	storage     blob.Storage
}

func NewDatasetService(datasetRepo DatasetRepository, userRepo UserRepository, storage blob.Storage) *DatasetService {
	return &DatasetService{
		datasetRepo: datasetRepo,
		userRepo:    userRepo,
		storage:     storage,
	}
}

func (s *DatasetService) Create(ctx context.Context, ownerID int64, req domain.DatasetCreate) (*domain.Dataset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Проверяем владельца
	if _, err := s.userRepo.GetByID(ctx, ownerID); err != nil {
		return nil, err
	}

	dataset := &domain.Dataset{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
		IsPublic:    req.IsPublic,
	}
	if err := s.datasetRepo.Create(ctx, dataset); err != nil {
		return nil, err
	}

	log.Printf("[DatasetService] Created dataset %d for user %d", dataset.ID, ownerID)
	return dataset, nil
}

// List возвращает страницу публичных датасетов
func (s *DatasetService) List(ctx context.Context, skip, limit int) ([]domain.Dataset, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.datasetRepo.ListPublic(ctx, skip, limit)
}

// visible загружает датасет, скрывая приватные от посторонних
func (s *DatasetService) visible(ctx context.Context, datasetID, callerID int64) (*domain.Dataset, error) {
	dataset, err := s.datasetRepo.GetByID(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if !dataset.VisibleTo(callerID) {
		return nil, fmt.Errorf("%w: dataset %d", domain.ErrNotFound, datasetID)
	}
	return dataset, nil
}

func (s *DatasetService) Get(ctx context.Context, datasetID, callerID int64) (*domain.DatasetDetail, error) {
	dataset, err := s.visible(ctx, datasetID, callerID)
	if err != nil {
		return nil, err
	}

	owner, err := s.userRepo.GetByID(ctx, dataset.OwnerID)
	if err != nil {
		return nil, err
	}

	versions, err := s.datasetRepo.GetVersions(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	return &domain.DatasetDetail{
		Dataset:  *dataset,
		Owner:    owner.Owner(),
		Versions: versions,
	}, nil
}

func ownedBy(callerID int64) domain.DatasetMutation {
	return func(d *domain.Dataset) error {
		if d.OwnerID != callerID {
			return fmt.Errorf("%w: dataset %d belongs to another user", domain.ErrForbidden, d.ID)
		}
		return nil
	}
}

func (s *DatasetService) Update(ctx context.Context, datasetID, callerID int64, patch domain.DatasetPatch) (*domain.Dataset, error) {
	check := ownedBy(callerID)
	return s.datasetRepo.Update(ctx, datasetID, func(d *domain.Dataset) error {
		if err := check(d); err != nil {
			return err
		}
		return patch.Apply(d)
	})
}

// Delete удаляет датасет и затем объекты его версий
func (s *DatasetService) Delete(ctx context.Context, datasetID, callerID int64) error {
	removed, err := s.datasetRepo.Delete(ctx, datasetID, ownedBy(callerID))
	if err != nil {
		return err
	}

	// Объекты удаляются после коммита, остатки подберет SweepService
	cleanupCtx := context.WithoutCancel(ctx)
	for _, v := range removed {
		if err := s.storage.Delete(cleanupCtx, v.StorageKey); err != nil {
			log.Printf("[DatasetService] Warning: failed to delete object %s: %v", v.StorageKey, err)
		}
	}

	log.Printf("[DatasetService] Deleted dataset %d with %d versions", datasetID, len(removed))
	return nil
}

// AddVersion записывает содержимое новой версии и регистрирует её.
// Данные пишутся до блокировки датасета под уникальный ключ,
// под блокировкой только назначается номер и вставляется строка версии.
func (s *DatasetService) AddVersion(ctx context.Context, datasetID, callerID int64, fileName string, r io.Reader) (*domain.DatasetVersion, error) {
	check := ownedBy(callerID)

	dataset, err := s.datasetRepo.GetByID(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if err := check(dataset); err != nil {
		return nil, err
	}

	key := blob.UploadKey(dataset.ID, uuid.NewString(), fileName)
	hasher := blake3.New()

	size, err := s.storage.Put(ctx, key, io.TeeReader(r, hasher))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIOFailure, err)
	}

	version, err := s.datasetRepo.AppendVersion(ctx, datasetID, func(d *domain.Dataset, number int) (*domain.DatasetVersion, error) {
		// владелец мог смениться или датасет удалён, пока шла загрузка
		if err := check(d); err != nil {
			return nil, err
		}
		return &domain.DatasetVersion{
			DatasetID:     d.ID,
			VersionNumber: number,
			StorageKey:    key,
			FileName:      blob.SanitizeFileName(fileName),
			FileSize:      size,
			Checksum:      hex.EncodeToString(hasher.Sum(nil)),
		}, nil
	})
	if err != nil {
		// Метаданные не записаны, объект никому не принадлежит
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.Printf("[DatasetService] Warning: failed to delete orphaned object %s: %v", key, delErr)
		}
		return nil, err
	}

	log.Printf("[DatasetService] Dataset %d: stored version %d (%d bytes)", datasetID, version.VersionNumber, version.FileSize)
	return version, nil
}

func (s *DatasetService) ListVersions(ctx context.Context, datasetID, callerID int64) ([]domain.DatasetVersion, error) {
	if _, err := s.visible(ctx, datasetID, callerID); err != nil {
		return nil, err
	}
	return s.datasetRepo.GetVersions(ctx, datasetID)
}

// Download открывает содержимое версии и учитывает скачивание.
// versionNumber == 0 означает последнюю версию.
func (s *DatasetService) Download(ctx context.Context, datasetID int64, versionNumber int, callerID int64) (*domain.VersionDownload, error) {
	if versionNumber < 0 {
		return nil, fmt.Errorf("%w: version number must be positive", domain.ErrInvalidInput)
	}
	if _, err := s.visible(ctx, datasetID, callerID); err != nil {
		return nil, err
	}

	version, err := s.datasetRepo.GetVersion(ctx, datasetID, versionNumber)
	if err != nil {
		return nil, err
	}

	obj, err := s.storage.Get(ctx, version.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIOFailure, err)
	}

	if err := s.datasetRepo.RecordDownload(ctx, datasetID, version.ID); err != nil {
		obj.Close()
		return nil, err
	}
	version.DownloadCount++

	return &domain.VersionDownload{
		Version: version,
		Body:    obj,
	}, nil
}
