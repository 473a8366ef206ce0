package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"datasethub/internal/service/blob"
)

// SweepService удаляет объекты, на которые не ссылается ни одна версия.
// Такие объекты остаются, если очистка после неудачной загрузки или удаления не удалась.
type SweepService struct {
	datasetRepo DatasetRepository
	storage     blob.Storage
	gracePeriod time.Duration
	now         func() time.Time
}

func NewSweepService(datasetRepo DatasetRepository, storage blob.Storage, gracePeriod time.Duration) *SweepService {
	return &SweepService{
		datasetRepo: datasetRepo,
		storage:     storage,
		gracePeriod: gracePeriod,
		now:         time.Now,
	}
}

// Sweep проходит по всем объектам и возвращает число удаленных.
// Объекты моложе gracePeriod пропускаются: их загрузка может быть еще не зафиксирована.
func (s *SweepService) Sweep(ctx context.Context) (int, error) {
	objects, err := s.storage.List(ctx, blob.RootPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list objects: %w", err)
	}

	cutoff := s.now().Add(-s.gracePeriod)
	deleted := 0

	for _, obj := range objects {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if obj.LastModified.After(cutoff) {
			continue
		}

		referenced, err := s.datasetRepo.StorageKeyExists(ctx, obj.Key)
		if err != nil {
			return deleted, err
		}
		if referenced {
			continue
		}

		if err := s.storage.Delete(ctx, obj.Key); err != nil {
			log.Printf("[SweepService] Error deleting object %s: %v", obj.Key, err)
			continue
		}
		deleted++
	}

	return deleted, nil
}

// StartCleanupTask запускает периодическую очистку до отмены контекста
func (s *SweepService) StartCleanupTask(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.Sweep(ctx)
				if err != nil {
					log.Printf("[SweepService] Error running cleanup: %v", err)
					continue
				}
				if deleted > 0 {
					log.Printf("[SweepService] Removed %d orphaned objects", deleted)
				}
			}
		}
	}()
}
