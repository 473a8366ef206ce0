// domain/dataset_version.go
package domain

import (
	"io"
	"time"
)

type DatasetVersion struct {
	ID            int64     `json:"id" db:"id"`
	DatasetID     int64     `json:"dataset_id" db:"dataset_id"`
	VersionNumber int       `json:"version_number" db:"version_number"`
	StorageKey    string    `json:"-" db:"storage_key"`
	FileName      string    `json:"file_name" db:"file_name"`
	FileSize      int64     `json:"file_size" db:"file_size"`
	Checksum      string    `json:"checksum" db:"checksum"`
	DownloadCount int64     `json:"download_count" db:"download_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// VersionDownload - версия и поток её содержимого
type VersionDownload struct {
	Version *DatasetVersion
	Body    io.ReadCloser
}
