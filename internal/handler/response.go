package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"corrsim/internal/models"
)

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(resp)
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, "RATE_LIMITED", message)
}

// OK is the body of mutations that have nothing else to report.
type OK struct {
	OK bool `json:"ok"`
}

var kindStatus = map[models.ErrorKind]int{
	models.KindNotFound:           http.StatusNotFound,
	models.KindConflict:           http.StatusConflict,
	models.KindInvalidCurrency:    http.StatusBadRequest,
	models.KindInvalidInput:       http.StatusBadRequest,
	models.KindInsufficientFunds:  http.StatusUnprocessableEntity,
	models.KindRouteUnavailable:   http.StatusUnprocessableEntity,
	models.KindRouteMismatch:      http.StatusUnprocessableEntity,
	models.KindInvariantViolation: http.StatusInternalServerError,
	models.KindInternal:           http.StatusInternalServerError,
}

// StatusFor returns the HTTP status a domain error is reported with.
func StatusFor(kind models.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Fail writes err with the status of its kind. Errors without a kind are
// reported as internal without leaking their text.
func Fail(w http.ResponseWriter, err error) {
	var domainErr *models.Error
	if !errors.As(err, &domainErr) {
		InternalError(w, "internal error")
		return
	}
	Error(w, StatusFor(domainErr.Kind), string(domainErr.Kind), domainErr.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates its struct tags.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Param() != "" {
				return fmt.Errorf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
			}
			return fmt.Errorf("%s is %s", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}
