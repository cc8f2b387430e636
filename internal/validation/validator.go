// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package validation wraps go-playground/validator v10 with the custom rules
// the launcher configuration needs.
//
// Custom tags:
//   - loopback: host string that resolves to the loopback interface
//   - relpath: non-empty relative path that does not escape its base directory
//
//	type ServiceConfig struct {
//	    Host string `validate:"required,loopback"`
//	    Port int    `validate:"min=1024,max=65535"`
//	}
//	if err := validation.ValidateStruct(&cfg); err != nil { ... }
package validation

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	Namespace string
	Tag       string
	Param     string
	Value     interface{}
	Message   string
}

// Error returns the human-readable message.
func (e FieldError) Error() string {
	return e.Message
}

// Error collects every field failure of one ValidateStruct call.
type Error struct {
	Fields []FieldError
}

// Error joins all field messages.
func (ve *Error) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, fe := range ve.Fields {
		messages[i] = fe.Message
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator instance with custom rules registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("loopback", validateLoopback)
		_ = validate.RegisterValidation("relpath", validateRelPath)
	})
	return validate
}

// ValidateStruct validates s and returns *Error on failure.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Error{Fields: []FieldError{{Namespace: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = FieldError{
			Namespace: trimRoot(fe.Namespace()),
			Tag:       fe.Tag(),
			Param:     fe.Param(),
			Value:     fe.Value(),
			Message:   translateError(fe),
		}
	}
	return &Error{Fields: fields}
}

func validateLoopback(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateRelPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return false
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	return clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

// trimRoot drops the top-level struct name from a validator namespace.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"loopback": "%s must be a loopback address (127.0.0.1, ::1 or localhost)",
	"relpath":  "%s must be a relative path inside the installation root",
	"hostname": "%s must be a valid host name",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

// translateError converts a validator.FieldError to a human-readable message.
func translateError(fe validator.FieldError) string {
	field := trimRoot(fe.Namespace())
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
