package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"datasethub/internal/domain"
)

type DatasetRepository struct {
	db *sqlx.DB
}

func NewDatasetRepository(db *sqlx.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

func (r *DatasetRepository) Create(ctx context.Context, dataset *domain.Dataset) error {
	query := `
        INSERT INTO datasets (name, description, owner_id, is_public)
        VALUES ($1, $2, $3, $4)
        RETURNING id, downloads, created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		dataset.Name,
		dataset.Description,
		dataset.OwnerID,
		dataset.IsPublic,
	).Scan(&dataset.ID, &dataset.Downloads, &dataset.CreatedAt, &dataset.UpdatedAt)
	if err != nil {
		return mapError(err, "dataset "+dataset.Name)
	}
	return nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id int64) (*domain.Dataset, error) {
	var dataset domain.Dataset
	err := r.db.GetContext(ctx, &dataset, `SELECT * FROM datasets WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("dataset %d", id))
	}
	return &dataset, nil
}

func (r *DatasetRepository) ListPublic(ctx context.Context, offset, limit int) ([]domain.Dataset, error) {
	datasets := make([]domain.Dataset, 0)
	query := `SELECT * FROM datasets WHERE is_public = TRUE ORDER BY id LIMIT $1 OFFSET $2`

	if err := r.db.SelectContext(ctx, &datasets, query, limit, offset); err != nil {
		return nil, fmt.Errorf("error listing datasets: %w", err)
	}
	return datasets, nil
}

// lockDataset читает датасет с блокировкой строки до конца транзакции
func lockDataset(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Dataset, error) {
	var dataset domain.Dataset
	err := tx.GetContext(ctx, &dataset, `SELECT * FROM datasets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("dataset %d", id))
	}
	return &dataset, nil
}

func (r *DatasetRepository) Update(ctx context.Context, id int64, mutate domain.DatasetMutation) (*domain.Dataset, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dataset, err := lockDataset(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(dataset); err != nil {
		return nil, err
	}

	query := `
        UPDATE datasets
        SET name = $1,
            description = $2,
            is_public = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $4
        RETURNING updated_at`

	err = tx.QueryRowContext(ctx, query, dataset.Name, dataset.Description, dataset.IsPublic, id).
		Scan(&dataset.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("error updating dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return dataset, nil
}

// Delete удаляет датасет вместе с версиями и возвращает удаленные версии,
// чтобы вызывающий мог удалить их объекты из хранилища.
func (r *DatasetRepository) Delete(ctx context.Context, id int64, check domain.DatasetMutation) ([]domain.DatasetVersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dataset, err := lockDataset(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := check(dataset); err != nil {
		return nil, err
	}

	versions := make([]domain.DatasetVersion, 0)
	err = tx.SelectContext(ctx, &versions,
		`SELECT * FROM dataset_versions WHERE dataset_id = $1 ORDER BY version_number`, id)
	if err != nil {
		return nil, fmt.Errorf("error getting dataset versions: %w", err)
	}

	// версии удаляются каскадно
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("error deleting dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return versions, nil
}

// AppendVersion назначает следующий номер версии под блокировкой строки датасета.
// stage только собирает строку версии, данные к этому моменту уже записаны.
func (r *DatasetRepository) AppendVersion(ctx context.Context, datasetID int64, stage domain.VersionStage) (*domain.DatasetVersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dataset, err := lockDataset(ctx, tx, datasetID)
	if err != nil {
		return nil, err
	}

	var count int
	err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM dataset_versions WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("error counting versions: %w", err)
	}
	number := count + 1

	version, err := stage(dataset, number)
	if err != nil {
		return nil, err
	}
	version.DatasetID = datasetID
	version.VersionNumber = number

	query := `
        INSERT INTO dataset_versions (dataset_id, version_number, storage_key, file_name, file_size, checksum)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, download_count, created_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		version.DatasetID,
		version.VersionNumber,
		version.StorageKey,
		version.FileName,
		version.FileSize,
		version.Checksum,
	).Scan(&version.ID, &version.DownloadCount, &version.CreatedAt)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("version %d of dataset %d", number, datasetID))
	}

	_, err = tx.ExecContext(ctx, `UPDATE datasets SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("error updating dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return version, nil
}

func (r *DatasetRepository) GetVersions(ctx context.Context, datasetID int64) ([]domain.DatasetVersion, error) {
	versions := make([]domain.DatasetVersion, 0)
	query := `SELECT * FROM dataset_versions WHERE dataset_id = $1 ORDER BY version_number`

	if err := r.db.SelectContext(ctx, &versions, query, datasetID); err != nil {
		return nil, fmt.Errorf("error getting dataset versions: %w", err)
	}
	return versions, nil
}

func (r *DatasetRepository) GetVersion(ctx context.Context, datasetID int64, versionNumber int) (*domain.DatasetVersion, error) {
	var version domain.DatasetVersion
	var err error

	if versionNumber == 0 {
		err = r.db.GetContext(ctx, &version, `
            SELECT * FROM dataset_versions
            WHERE dataset_id = $1
            ORDER BY version_number DESC
            LIMIT 1`, datasetID)
	} else {
		err = r.db.GetContext(ctx, &version, `
            SELECT * FROM dataset_versions
            WHERE dataset_id = $1 AND version_number = $2`, datasetID, versionNumber)
	}
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("version %d of dataset %d", versionNumber, datasetID))
	}
	return &version, nil
}

func (r *DatasetRepository) GetVersionByID(ctx context.Context, id int64) (*domain.DatasetVersion, error) {
	var version domain.DatasetVersion
	err := r.db.GetContext(ctx, &version, `SELECT * FROM dataset_versions WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("version %d", id))
	}
	return &version, nil
}

// RecordDownload увеличивает счетчики версии и датасета в одной транзакции
func (r *DatasetRepository) RecordDownload(ctx context.Context, datasetID, versionID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE dataset_versions
        SET download_count = download_count + 1
        WHERE id = $1 AND dataset_id = $2`, versionID, datasetID)
	if err != nil {
		return fmt.Errorf("error updating version downloads: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating version downloads: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: version %d", domain.ErrNotFound, versionID)
	}

	_, err = tx.ExecContext(ctx, `UPDATE datasets SET downloads = downloads + 1 WHERE id = $1`, datasetID)
	if err != nil {
		return fmt.Errorf("error updating dataset downloads: %w", err)
	}

	return tx.Commit()
}

func (r *DatasetRepository) StorageKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM dataset_versions WHERE storage_key = $1)`, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("error checking storage key: %w", err)
	}
	return exists, nil
}
