package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"taskboard/backend/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// BindJSON decodes and validates the body into out. On failure it writes a
// 400 envelope listing the rejected fields and returns false.
func BindJSON(c *gin.Context, logger *slog.Logger, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		RespondError(c, logger, parseBindError(err, out))
		return false
	}
	return true
}

func parseBindError(err error, out interface{}) error {
	rootType := baseStructType(out)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]apperrors.FieldError, 0, len(validationErrors))
		for _, fe := range validationErrors {
			rule := fe.Tag()
			param := fe.Param()
			fields = append(fields, apperrors.FieldError{
				Field:   jsonPathFromValidatorError(rootType, fe),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		message := "Invalid request body"
		if len(fields) > 0 {
			message = fmt.Sprintf("%s %s", fields[0].Field, fields[0].Message)
		}
		return apperrors.Validation(message, fields...)
	}

	var syntaxError *json.SyntaxError
	if errors.As(err, &syntaxError) || errors.Is(err, io.ErrUnexpectedEOF) {
		return apperrors.Validation("Request body is not valid JSON")
	}

	if errors.Is(err, io.EOF) {
		return apperrors.Validation("Request body is required")
	}

	var typeError *json.UnmarshalTypeError
	if errors.As(err, &typeError) {
		field := jsonPathFromDotPath(rootType, typeError.Field)
		if field == "" {
			field = strings.TrimSpace(typeError.Field)
		}
		msg := fmt.Sprintf("must be of type %s", typeError.Type.String())
		return apperrors.Validation(fmt.Sprintf("%s %s", field, msg),
			apperrors.FieldError{Field: field, Rule: "type", Message: msg})
	}

	var maxBytesError *http.MaxBytesError
	if errors.As(err, &maxBytesError) {
		return apperrors.Validation("Request body is too large")
	}

	return apperrors.Validation("Invalid request body")
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		return t
	}
	return nil
}

func jsonPathFromValidatorError(rootType reflect.Type, fe validator.FieldError) string {
	// Namespace is "<StructName>.<Field>[.<NestedField>...]".
	namespace := fe.StructNamespace()
	if namespace == "" {
		namespace = fe.Namespace()
	}
	if namespace == "" {
		return fe.Field()
	}

	parts := strings.Split(namespace, ".")
	if rootType != nil && rootType.Name() != "" && len(parts) > 0 && parts[0] == rootType.Name() {
		parts = parts[1:]
	}

	if path := mapStructPathToJSONPath(rootType, parts); path != "" {
		return path
	}
	return fe.Field()
}

func jsonPathFromDotPath(rootType reflect.Type, dotPath string) string {
	dotPath = strings.TrimSpace(dotPath)
	if dotPath == "" {
		return ""
	}
	return mapStructPathToJSONPath(rootType, strings.Split(dotPath, "."))
}

func mapStructPathToJSONPath(rootType reflect.Type, parts []string) string {
	current := rootType
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		name := part
		var next reflect.Type
		if current != nil && current.Kind() == reflect.Struct {
			if sf, ok := current.FieldByName(part); ok {
				name = jsonNameFromStructField(sf)
				next = sf.Type
			}
		}
		out = append(out, name)

		for next != nil && next.Kind() == reflect.Pointer {
			next = next.Elem()
		}
		current = next
	}

	return strings.Join(out, ".")
}

func jsonNameFromStructField(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
