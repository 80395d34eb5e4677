package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/exporter"
	"petakeu/internal/uploads"
)

// uploadField is the multipart field carrying the spreadsheet
const uploadField = "file"

// multipartOverhead is the slack allowed above the file limit for the
// multipart envelope
const multipartOverhead = 1 << 20

// UploadHandler serves spreadsheet intake and upload status
type UploadHandler struct {
	service      *uploads.Service
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(service *uploads.Service, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *UploadHandler {
	return &UploadHandler{
		service:      service,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "upload_handler")),
	}
}

// Routes returns the upload routes
func (h *UploadHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upload)
	r.Get("/", h.ListUploads)
	r.Get("/{id}", h.GetUpload)
	r.Get("/{id}/errors.csv", h.DownloadErrorReport)
	return r
}

// Upload handles POST /uploads with the spreadsheet in the multipart field
// "file". It answers 202 once the file is queued for validation.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxSize := h.service.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.errorHandler.HandleError(w, r, uploads.ErrFileTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation(uploadField, "Berkas wajib diunggah"))
		default:
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		}
		return
	}
	defer file.Close()

	upload := uploads.File{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
	}
	// oversized and foreign files are rejected without reading them
	if header.Size <= maxSize && uploads.IsAcceptedMimeType(upload.MimeType) {
		upload.Data, err = io.ReadAll(io.LimitReader(file, maxSize+1))
		if err != nil {
			h.errorHandler.HandleError(w, r, fmt.Errorf("failed to read upload: %w", err))
			return
		}
	}

	result, err := h.service.Intake(ctx, upload)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "upload intake",
		slog.String("upload_id", result.UploadID),
		slog.String("status", string(result.Status)),
		slog.String("filename", header.Filename))
	renderJSONStatus(w, r, http.StatusAccepted, result)
}

// ListUploads handles GET /uploads, newest first
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	renderData(w, r, http.StatusOK, records)
}

// GetUpload handles GET /uploads/{id}
func (h *UploadHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	renderData(w, r, http.StatusOK, record)
}

// DownloadErrorReport handles GET /uploads/{id}/errors.csv. Uploads without
// row errors have no report.
func (h *UploadHandler) DownloadErrorReport(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if len(record.Errors) == 0 {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("error report"))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-errors.csv"`, record.ID))
	if err := exporter.WriteErrorReportTo(w, record.Errors); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to stream error report",
			slog.String("upload_id", record.ID),
			slog.String("error", err.Error()))
	}
}
