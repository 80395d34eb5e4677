package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/operations"
	"petakeu/internal/regions"
	"petakeu/internal/reports"
	"petakeu/internal/uploads"
)

// ClassifyError maps domain errors onto API errors. Register it with
// ErrorHandler.WithClassifier.
func ClassifyError(err error) *apierrors.APIError {
	var invalid *reports.InvalidRequestError
	if errors.As(err, &invalid) {
		fields := make([]apierrors.ValidationError, len(invalid.Fields))
		for i, f := range invalid.Fields {
			fields[i] = apierrors.ValidationError{Field: f.Field, Message: f.Message}
		}
		return apierrors.NewValidationErrors(fields)
	}

	switch {
	case errors.Is(err, reports.ErrInvalidRequest):
		return apierrors.ErrValidationFailed
	case errors.Is(err, regions.ErrInvalidPeriod):
		return apierrors.New(http.StatusBadRequest, "INVALID_PERIOD", err.Error())
	case errors.Is(err, regions.ErrRegionNotFound):
		return apierrors.ErrRegionNotFound
	case errors.Is(err, regions.ErrNoPaymentData):
		return apierrors.ErrDataNotFound
	case errors.Is(err, uploads.ErrUploadNotFound):
		return apierrors.ErrUploadNotFound
	case errors.Is(err, uploads.ErrFileTooLarge):
		return apierrors.ErrFileTooLarge
	case errors.Is(err, uploads.ErrUnsupportedFormat):
		return apierrors.ErrUnsupportedFormat
	case errors.Is(err, reports.ErrJobNotFound):
		return apierrors.ErrReportNotFound
	case errors.Is(err, operations.ErrJobNotFound):
		return apierrors.NotFoundError("job")
	case errors.Is(err, operations.ErrQueueFull), errors.Is(err, operations.ErrQueueStopped):
		return apierrors.ErrServiceUnavailable
	case apierrors.IsType(err, apierrors.ErrTypeStorage):
		return apierrors.ErrServiceUnavailable
	}
	return nil
}

// dataResponse is the {data: ...} envelope of resource endpoints
type dataResponse struct {
	Data interface{} `json:"data"`
}

func renderData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	renderJSONStatus(w, r, status, dataResponse{Data: data})
}

func renderJSONStatus(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
