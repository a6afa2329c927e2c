package validation

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lumiverse/lumiverse/errors"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 2 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates v against its validate tags and converts any failures
// into error details.
func Struct(v interface{}) []ErrorDetail {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return []ErrorDetail{{Field: "body", Message: err.Error(), Code: "invalid"}}
	}

	details := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ErrorDetail{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
			Code:    fmt.Sprintf("%s_validation_failed", fe.Tag()),
			Value:   fmt.Sprintf("%v", fe.Value()),
		})
	}
	return details
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("validation failed on '%s'", fe.Tag())
	}
}

// DecodeJSON reads an optional JSON body into dst and validates it. An empty
// body leaves dst untouched. On failure the returned error is ready to be
// written with errors.WriteError.
func DecodeJSON(r *http.Request, requestID string, dst interface{}) *errors.APIError {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return errors.NewBadRequestError(requestID, "Failed to read request body", err)
	}
	if len(body) > MaxBodyBytes {
		return errors.NewValidationError(requestID, "Request body too large", map[string]interface{}{
			"errors": []ErrorDetail{{
				Field:   "body",
				Message: fmt.Sprintf("body must not exceed %d bytes", MaxBodyBytes),
				Code:    "body_too_large",
			}},
		})
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if ct := r.Header.Get("Content-Type"); !isJSON(ct) {
		return errors.NewValidationError(requestID, "Invalid or missing Content-Type header", map[string]interface{}{
			"errors": []ErrorDetail{{
				Field:   "header:Content-Type",
				Message: "Content-Type must be application/json",
				Code:    "invalid_content_type",
				Value:   ct,
			}},
		})
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError(requestID, "Invalid request format", map[string]interface{}{
			"errors": []ErrorDetail{{
				Field:   "body",
				Message: err.Error(),
				Code:    "invalid_json",
			}},
		})
	}

	if details := Struct(dst); len(details) > 0 {
		return errors.NewValidationError(requestID, "Request validation failed", map[string]interface{}{
			"errors":     details,
			"suggestion": "The request format is correct but the content is invalid",
		})
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
