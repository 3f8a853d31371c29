// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// maxShopLength is the DNS name limit.
const maxShopLength = 253

// FieldError is one failed rule on one field. Field uses the JSON name so
// it matches what the storefront script sent.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Message }

// RequestValidationError carries every failed rule of one request. Its
// message is safe to return to clients.
type RequestValidationError struct {
	Fields []FieldError
}

// Errors returns the failed fields in declaration order.
func (ve *RequestValidationError) Errors() []FieldError { return ve.Fields }

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	for i, fe := range ve.Fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Message)
	}
	return b.String()
}

// GetValidator returns the singleton validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// Registration only fails for empty tags or nil funcs.
		_ = validate.RegisterValidation("shopdomain", validateShopDomain)
	})

	return validate
}

// validateShopDomain accepts lowercase-insensitive DNS names such as
// "demo.myshopify.com". It deliberately does not require the myshopify
// suffix so custom storefront domains work too.
func validateShopDomain(fl validator.FieldLevel) bool {
	return IsShopDomain(fl.Field().String())
}

// IsShopDomain reports whether s looks like a storefront host name.
func IsShopDomain(s string) bool {
	if s == "" || len(s) > maxShopLength {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			default:
				return false
			}
		}
	}
	return true
}

// ValidateStruct validates s and returns nil or a *RequestValidationError.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: s was nil or not a struct.
		return &RequestValidationError{Fields: []FieldError{{Field: "body", Rule: "struct", Message: err.Error()}}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe),
		})
	}
	return out
}

// describe renders a rule failure as a short sentence about the field.
func describe(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	var phrase string
	switch fe.Tag() {
	case "required":
		phrase = "is required"
	case "shopdomain":
		phrase = "must be a valid shop domain"
	case "uuid", "uuid4":
		phrase = "must be a valid UUID"
	case "oneof":
		phrase = "must be one of: " + fe.Param()
	case "gt":
		phrase = "must be greater than " + fe.Param()
	case "gte":
		phrase = "must be greater than or equal to " + fe.Param()
	case "lt":
		phrase = "must be less than " + fe.Param()
	case "lte":
		phrase = "must be less than or equal to " + fe.Param()
	case "min":
		phrase = "must be at least " + fe.Param() + unit
	case "max":
		phrase = "must be at most " + fe.Param() + unit
	default:
		phrase = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return fe.Field() + " " + phrase
}
