package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TagRule is the validator rule behind the "rfid" alias: a normalized tag
// is 4-32 upper-case alphanumerics.
const TagRule = "alphanum,uppercase,min=4,max=32"

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper with the "rfid" alias
// registered.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterAlias("rfid", TagRule)
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// NormalizeTag upper-cases and trims a scanned tag. Readers disagree on case.
func NormalizeTag(rfid string) string {
	return strings.ToUpper(strings.TrimSpace(rfid))
}

// ValidateTag checks a single normalized tag, such as one taken from a URL.
func (vh *ValidationHelper) ValidateTag(rfid string) error {
	return vh.validator.Var(rfid, "required,rfid")
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
