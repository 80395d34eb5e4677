package reports

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"petakeu/internal/dataprocessing"
	api "petakeu/pkg/contracts/api/v1"
)

// NewValidate returns a validator that knows the "period" tag and reports
// fields by their JSON names
func NewValidate() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("period", isPeriod)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func isPeriod(fl validator.FieldLevel) bool {
	return dataprocessing.IsValidPeriod(strings.TrimSpace(fl.Field().String()))
}

// ValidateRequest checks an export request. Failures are *InvalidRequestError.
func ValidateRequest(v *validator.Validate, req api.ReportExportRequest) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	out := &InvalidRequestError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: formatFieldError(fe)})
	}
	return out
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must contain at least %s item", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "period":
		return fmt.Sprintf("%s must be a YYYY-MM month", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
