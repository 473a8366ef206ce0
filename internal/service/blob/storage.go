// storage.go
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// RootPrefix - префикс всех объектов с версиями датасетов
const RootPrefix = "datasets/"

var ErrObjectNotFound = errors.New("object not found")

// Object определяет интерфейс для содержимого объекта
type Object interface {
	io.ReadCloser
	ContentLength() int64
}

// ObjectInfo описывает объект при листинге
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage определяет интерфейс хранилища содержимого версий.
// Put перезаписывает объект целиком и возвращает число записанных байт.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// UploadKey формирует ключ объекта для загрузки.
// uploadID уникален для каждой загрузки, поэтому ключ известен до назначения
// номера версии и одинаковые имена файлов не перезаписывают друг друга.
func UploadKey(datasetID int64, uploadID, fileName string) string {
	return fmt.Sprintf("%s%s/%s", DatasetPrefix(datasetID), uploadID, SanitizeFileName(fileName))
}

func DatasetPrefix(datasetID int64) string {
	return fmt.Sprintf("%s%d/", RootPrefix, datasetID)
}

// SanitizeFileName оставляет только базовое имя файла
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "data"
	}
	return base
}

type readCloser struct {
	io.ReadCloser
	contentLength int64
}

func (o *readCloser) ContentLength() int64 {
	return o.contentLength
}

// NewObject оборачивает поток в Object
func NewObject(rc io.ReadCloser, contentLength int64) Object {
	return &readCloser{ReadCloser: rc, contentLength: contentLength}
}
