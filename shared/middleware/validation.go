package middleware

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// decimal.Decimal is a struct, so tags on it only run once it is
	// presented to the validator as a plain string.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("money", validateMoney); err != nil {
		panic(err)
	}
	return v
}

func validateMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return ValidMoney(d)
}

// ValidMoney reports whether d is a positive amount with at most two decimal
// places.
func ValidMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(2))
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type BadRequestErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ValidateRequest(obj any) []ValidationError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Message: err.Error(), Type: "invalid"}}
	}

	validationErrors := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fe.Field(),
			Message: getErrorMsg(fe),
			Type:    fe.Tag(),
		})
	}
	return validationErrors
}

func getErrorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "money":
		return "Amount must be greater than zero with at most two decimal places"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "oneof":
		return "Value must be one of: " + err.Param()
	default:
		return "Invalid value"
	}
}

func RespondWithValidationError(c *gin.Context, validationErrors []ValidationError) {
	code := apperr.ErrInvalidRequest.Code
	for _, ve := range validationErrors {
		if ve.Type == "money" {
			code = apperr.ErrInvalidAmount.Code
		}
	}
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Code:    code,
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"message": message,
	})
}

// RespondWithAppError writes err using the shared status mapping. Foreign
// errors are attached to the gin context for the request logger and answered
// as a generic internal error.
func RespondWithAppError(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		_ = c.Error(err)
	}
	c.JSON(apperr.HTTPStatus(err), ErrorResponse{
		Code:    apperr.CodeOf(err),
		Message: apperr.MessageOf(err),
	})
}
