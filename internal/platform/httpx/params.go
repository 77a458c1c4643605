package httpx

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// NewValidator returns a validator that reports fields by their query tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate runs v over target and converts every violation into a FieldError.
func Validate(v *validator.Validate, target any) error {
	err := v.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &shared.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe), fieldMessage(fe))
	}
	return verr.Err()
}

// List reads a multi-valued query parameter given either repeated or comma
// separated. Blank items are dropped.
func List(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// Int reads an optional integer parameter. Absent values yield def.
func Int(r *http.Request, verr *shared.ValidationError, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		verr.Add(name, "must be an integer")
		return def
	}
	return v
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	kind := fe.Kind()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		switch kind {
		case reflect.String:
			return "must be at least " + fe.Param() + " characters"
		case reflect.Slice:
			return "must contain at least " + fe.Param() + " items"
		}
		return "must be at least " + fe.Param()
	case "max", "lte":
		switch kind {
		case reflect.String:
			return "must be at most " + fe.Param() + " characters"
		case reflect.Slice:
			return "must contain at most " + fe.Param() + " items"
		}
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
