package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// requestValidator names fields by their query or json tag, which is what
// the client actually sent.
var requestValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			if name, _, _ := strings.Cut(fld.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}()

// ReadAndValidateRequest applies `default` tags, binds path, query and body
// over them, then validates. A nil return means req is ready to use.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	steps := []func() error{
		func() error { return defaults.Set(req) },
		func() error { return c.Bind(req) },
		func() error { return requestValidator.StructCtx(c.Request().Context(), req) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return toValidationErrors(err)
		}
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, fieldError(fe))
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

func fieldError(fe validator.FieldError) ValidationError {
	name, param := fe.Field(), fe.Param()
	v := ValidationError{Code: "ERR_" + strings.ToUpper(fe.Tag()), Field: name}

	switch fe.Tag() {
	case "required":
		v.Message = name + " is required"
	case "min", "gte":
		v.Message = fmt.Sprintf("%s must be at least %s", name, param)
		v.Params = map[string]interface{}{"min": param}
	case "max", "lte":
		v.Message = fmt.Sprintf("%s must be at most %s", name, param)
		v.Params = map[string]interface{}{"max": param}
	case "oneof":
		options := strings.Fields(param)
		v.Message = fmt.Sprintf("%s must be one of: %s", name, strings.Join(options, ", "))
		v.Params = map[string]interface{}{"options": options}
	default:
		v.Message = fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
	return v
}
