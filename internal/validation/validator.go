// Package validation decodes and validates inbound request payloads.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds the request body read by BindAndValidate.
const maxBodyBytes = 1 << 20

// ErrInvalidBody is returned when the request body is not valid JSON.
var ErrInvalidBody = errors.New("invalid request body")

// FieldErrors maps a JSON field name to the failed validation tag.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f, tag := range fe {
		fields = append(fields, f+": "+tag)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// Has reports whether field failed validation.
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

// Failed reports whether field failed the given validation tag.
func (fe FieldErrors) Failed(field, tag string) bool {
	got, ok := fe[field]
	return ok && got == tag
}

// Normalizer is implemented by payloads that clean up their fields before validation.
type Normalizer interface {
	Normalize()
}

// New returns a validator that reports fields by their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BindAndValidate decodes the JSON body of r into out, normalizes it and runs validation.
// It returns an error wrapping ErrInvalidBody for undecodable bodies and
// FieldErrors for payloads that fail validation.
func BindAndValidate(r *http.Request, out any, v *validatorv10.Validate) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	if n, ok := out.(Normalizer); ok {
		n.Normalize()
	}

	if err := v.Struct(out); err != nil {
		return toFieldErrors(err)
	}
	return nil
}

func toFieldErrors(err error) error {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := FieldErrors{}
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
