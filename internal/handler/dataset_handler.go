package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"datasethub/internal/domain"
	"datasethub/internal/service"
)

const uploadField = "file"

type DatasetHandler struct {
	authenticator
	datasetService *service.DatasetService
	maxUploadBytes int64
}

func NewDatasetHandler(datasetService *service.DatasetService, userService *service.UserService, maxUploadBytes int64) *DatasetHandler {
	return &DatasetHandler{
		authenticator:  authenticator{userService: userService},
		datasetService: datasetService,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *DatasetHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := h.requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req domain.DatasetCreate
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	dataset, err := h.datasetService.Create(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataset)
}

func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip")
	if err != nil {
		badRequest(w, "Invalid skip")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, "Invalid limit")
		return
	}

	datasets, err := h.datasetService.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetIDParam(r)
	if !ok {
		badRequest(w, "Invalid dataset ID")
		return
	}
	callerID, err := h.optionalCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail, err := h.datasetService.Get(r.Context(), id, callerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *DatasetHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := h.requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := datasetIDParam(r)
	if !ok {
		badRequest(w, "Invalid dataset ID")
		return
	}

	var patch domain.DatasetPatch
	if err := decodeJSON(r, &patch); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	dataset, err := h.datasetService.Update(r.Context(), id, user.ID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := h.requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := datasetIDParam(r)
	if !ok {
		badRequest(w, "Invalid dataset ID")
		return
	}

	if err := h.datasetService.Delete(r.Context(), id, user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upload передает часть multipart "file" в хранилище потоком, без временных файлов
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, err := h.requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := datasetIDParam(r)
	if !ok {
		badRequest(w, "Invalid dataset ID")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		badRequest(w, "Expected multipart/form-data body")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			badRequest(w, fmt.Sprintf("No %q field in form", uploadField))
			return
		}
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: failed to read form: %w", domain.ErrInvalidInput, err))
			return
		}

		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		fileName := part.FileName()
		if fileName == "" {
			part.Close()
			badRequest(w, "File name is required")
			return
		}

		version, err := h.datasetService.AddVersion(r.Context(), id, user.ID, fileName, part)
		part.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, version)
		return
	}
}

func (h *DatasetHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetIDParam(r)
	if !ok {
		badRequest(w, "Invalid dataset ID")
		return
	}
	callerID, err := h.optionalCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	versions, err := h.datasetService.ListVersions(r.Context(), id, callerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *DatasetHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetIDParam(r)
	if !ok {
		badRequest(w, "Invalid dataset ID")
		return
	}

	number := 0
	if raw := chi.URLParam(r, "number"); raw != "latest" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "Invalid version number")
			return
		}
		number = n
	}

	callerID, err := h.optionalCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dl, err := h.datasetService.Download(r.Context(), id, number, callerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer dl.Body.Close()

	// Подготавливаем имя файла для Content-Disposition
	name := dl.Version.FileName
	asciiName := strings.ReplaceAll(name, `"`, `\"`)
	contentDisposition := fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiName, url.PathEscape(name))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", contentDisposition)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Version.FileSize, 10))
	w.Header().Set("X-Dataset-Version", strconv.Itoa(dl.Version.VersionNumber))
	w.Header().Set("X-Checksum-Blake3", dl.Version.Checksum)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		log.Printf("[Download] Error streaming dataset %d version %d: %v", id, dl.Version.VersionNumber, err)
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
