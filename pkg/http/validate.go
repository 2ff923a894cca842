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

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(fieldName)
	return v
}

// fieldName reports fields by their json or path param name.
func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	if name := f.Tag.Get("param"); name != "" {
		return name
	}
	return f.Name
}

// ReadAndValidateRequest binds path params and body, applies defaults and validates.
// It returns nil on success or a []ValidationError suitable for BadRequestResponse.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return bindErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return []ValidationError{{Code: "ERR_DEFAULTS", Message: err.Error()}}
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		var fes validator.ValidationErrors
		if !errors.As(err, &fes) {
			return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
		}
		out := make([]ValidationError, 0, len(fes))
		for _, fe := range fes {
			out = append(out, fieldError(fe))
		}
		return out
	}
	return nil
}

func bindErrors(err error) []ValidationError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_MALFORMED_BODY", Message: fmt.Sprint(he.Message)}}
	}
	return []ValidationError{{Code: "ERR_MALFORMED_BODY", Message: err.Error()}}
}

// bound describes comparison tags: the phrase and the param key.
var bound = map[string][2]string{
	"gt":  {"greater than", "value"},
	"gte": {"greater than or equal to", "min"},
	"lt":  {"less than", "value"},
	"lte": {"less than or equal to", "max"},
	"min": {"at least", "min"},
	"max": {"at most", "max"},
}

func fieldError(fe validator.FieldError) ValidationError {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()
	ve := ValidationError{Code: "ERR_" + strings.ToUpper(tag), Field: field}

	switch {
	case tag == "required":
		ve.Message = field + " is required"
	case tag == "oneof":
		opts := strings.Fields(param)
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", "))
		ve.Params = map[string]interface{}{"options": opts}
	case bound[tag] != [2]string{}:
		b := bound[tag]
		unit := ""
		if (tag == "min" || tag == "max") && fe.Kind() == reflect.String {
			unit = " characters"
		}
		ve.Message = fmt.Sprintf("%s must be %s %s%s", field, b[0], param, unit)
		ve.Params = map[string]interface{}{b[1]: param}
	default:
		ve.Message = fmt.Sprintf("%s failed validation: %s", field, tag)
	}
	return ve
}
